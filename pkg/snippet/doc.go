// Package snippet defines the persisted Snippet record and the rules for the
// human-readable slugs that address it.
//
// Slugs are lowercase ASCII letters, digits and hyphens, 3–60 characters,
// never starting or ending with a hyphen, and never one of the reserved
// route names (api, admin, health, ws, new, static). Sanitize maps free text
// onto that alphabet; Validate enforces the rest; Generate produces a random
// 8-character slug that always validates.
package snippet
