package mysql

const insertAttractionSQL = `
INSERT INTO attractions
  (host_id, title, slug, city, city_slug, activity, activity_slug, category, description, price, currency, lat, lon)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const insertImagesPrefix = "INSERT INTO attraction_images (attraction_id, position, public_id, url) VALUES "

const upsertProfileSQL = `
INSERT INTO profiles
  (id, display_name, email, avatar_url, role)
VALUES
  (?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  display_name = VALUES(display_name),
  email        = VALUES(email),
  avatar_url   = COALESCE(VALUES(avatar_url), profiles.avatar_url),
  role         = VALUES(role),
  updated_at   = CURRENT_TIMESTAMP
`

const insertReviewSQL = `
INSERT INTO reviews (attraction_id, user_id, author, rating, comment)
VALUES (?, ?, ?, ?, ?)
`

const insertOfferSQL = `
INSERT INTO offers
  (id, attraction_id, title, description, discount_percent, original_price, offer_price, currency, starts_at, ends_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const insertSweepSQL = `
INSERT INTO media_sweeps (public_id, action, reason)
VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE
  action  = VALUES(action),
  reason  = VALUES(reason),
  seen_at = CURRENT_TIMESTAMP
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

// Shared column list for attraction rows; scanned by scanAttraction.
// The rating aggregate is a derived table so one statement serves lists too.
const attractionCols = `
  a.id, a.host_id, a.title, a.slug, a.city, a.city_slug, a.activity, a.activity_slug,
  a.category, a.description, a.price, a.currency, a.lat, a.lon, a.created_at,
  r.avg_rating, COALESCE(r.n, 0),
  ci.public_id, ci.url`

const attractionJoins = `
FROM attractions a
LEFT JOIN (
  SELECT attraction_id, AVG(rating) AS avg_rating, COUNT(*) AS n
  FROM reviews GROUP BY attraction_id
) r ON r.attraction_id = a.id
LEFT JOIN attraction_images ci ON ci.attraction_id = a.id AND ci.position = 0`

const getAttractionSQL = `SELECT` + attractionCols + attractionJoins + `
WHERE a.id = ?`

const listImagesSQL = `
SELECT public_id, url FROM attraction_images
WHERE attraction_id = ?
ORDER BY position`

const listReviewsSQL = `
SELECT id, attraction_id, user_id, author, rating, comment, created_at
FROM reviews
WHERE attraction_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`

// ST_Distance_Sphere takes POINT(lon, lat) and returns metres.
const listNearbySQL = `SELECT` + attractionCols + `,
  ST_Distance_Sphere(POINT(a.lon, a.lat), POINT(ref.lon, ref.lat)) / 1000 AS distance_km` + attractionJoins + `
JOIN attractions ref ON ref.id = ?
WHERE a.id <> ref.id
  AND a.lat IS NOT NULL AND a.lon IS NOT NULL
  AND ref.lat IS NOT NULL AND ref.lon IS NOT NULL
HAVING distance_km <= ?
ORDER BY distance_km, a.id
LIMIT ?`

const listOfferIDsSQL = `SELECT id FROM offers WHERE attraction_id = ?`

const getOfferSQL = `
SELECT
  o.id, o.attraction_id, o.title, o.description, o.discount_percent,
  o.original_price, o.offer_price, o.currency, o.starts_at, o.ends_at,
  a.title, a.slug, a.city_slug, a.activity_slug
FROM offers o
JOIN attractions a ON a.id = o.attraction_id
WHERE o.id = ?`

const getContactSQL = `
SELECT p.display_name, p.email, p.phone
FROM attractions a
JOIN profiles p ON p.id = a.host_id
WHERE a.id = ?`

const imageReferencedSQL = `SELECT EXISTS(SELECT 1 FROM attraction_images WHERE public_id = ?)`
