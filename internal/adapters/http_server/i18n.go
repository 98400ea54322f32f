package httpserver

import (
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

var pageLanguages = []language.Tag{language.English, language.Spanish, language.French}

// translations are keyed by the English text.
var translations = map[string][2]string{ // es, fr
	"Discover things to do":    {"Descubre qué hacer", "Découvrez quoi faire"},
	"All":                      {"Todo", "Tout"},
	"No attractions here yet.": {"Todavía no hay atracciones aquí.", "Pas encore d'attractions ici."},
	"More":                     {"Más", "Plus"},
	"Show more":                {"Mostrar más", "Afficher plus"},
	"Reviews":                  {"Opiniones", "Avis"},
	"No reviews yet.":          {"Aún no hay opiniones.", "Pas encore d'avis."},
	"Nearby":                   {"Cerca", "À proximité"},
	"%.1f km away":             {"a %.1f km", "à %.1f km"},
	"Page not found":           {"Página no encontrada", "Page introuvable"},
	"We could not find what you were looking for.": {"No encontramos lo que buscabas.", "Nous n'avons pas trouvé ce que vous cherchiez."},
	"Something went wrong":                         {"Algo salió mal", "Une erreur s'est produite"},
	"Please try again in a moment.":                {"Vuelve a intentarlo en un momento.", "Veuillez réessayer dans un instant."},
	"Try again":                                    {"Intentar de nuevo", "Réessayer"},
	"Back to home":                                 {"Volver al inicio", "Retour à l'accueil"},
	"Sign-in failed":                               {"Error al iniciar sesión", "Échec de la connexion"},
	"Sign in":                                      {"Iniciar sesión", "Se connecter"},
	"Sign out":                                     {"Cerrar sesión", "Se déconnecter"},
}

func newCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for en, tr := range translations {
		_ = b.SetString(language.English, en, en)
		_ = b.SetString(language.Spanish, en, tr[0])
		_ = b.SetString(language.French, en, tr[1])
	}
	return b
}

type localizer struct {
	matcher language.Matcher
	cat     catalog.Catalog
}

func newLocalizer() *localizer {
	return &localizer{matcher: language.NewMatcher(pageLanguages), cat: newCatalog()}
}

// pick chooses a page language from ?lang= and then Accept-Language.
func (l *localizer) pick(r *http.Request) language.Tag {
	var want []language.Tag
	if q := r.URL.Query().Get("lang"); q != "" {
		if t, err := language.Parse(q); err == nil {
			want = append(want, t)
		}
	}
	if tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language")); err == nil {
		want = append(want, tags...)
	}
	_, i, conf := l.matcher.Match(want...)
	if conf == language.No {
		return language.English
	}
	return pageLanguages[i]
}

func (l *localizer) printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag, message.Catalog(l.cat))
}
