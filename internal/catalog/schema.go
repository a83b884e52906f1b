package catalog

// Schema creates the catalog tables. work_id is the real deduplication
// key on book; goodreads_id is the secondary unique key so a record can be
// found by either. book_scraped is the ledger: a row means a resolution
// attempt completed for that id, it never implies the book row exists.
const Schema = `
CREATE TABLE IF NOT EXISTS book (
	goodreads_id     TEXT PRIMARY KEY,
	work_id          TEXT NOT NULL UNIQUE,
	title            TEXT NOT NULL,
	published_date   TEXT,
	published_state  TEXT,
	language         TEXT,
	pages            INTEGER,
	isbn             TEXT,
	goodreads_rating REAL,
	goodreads_votes  INTEGER,
	description      TEXT,
	image_url        TEXT,
	source           TEXT,
	hidden           BOOLEAN NOT NULL DEFAULT FALSE,
	hidden_reason    TEXT,
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP NOT NULL,
	last_synced_at   TIMESTAMP
);

CREATE TABLE IF NOT EXISTS author (
	goodreads_id TEXT PRIMARY KEY,
	name         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS genre (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS series (
	goodreads_id TEXT PRIMARY KEY,
	title        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS book_author (
	work_id   TEXT NOT NULL REFERENCES book(work_id),
	author_id TEXT NOT NULL REFERENCES author(goodreads_id),
	role      TEXT,
	PRIMARY KEY (work_id, author_id)
);

CREATE TABLE IF NOT EXISTS book_genre (
	work_id  TEXT NOT NULL REFERENCES book(work_id),
	genre_id INTEGER NOT NULL REFERENCES genre(id),
	PRIMARY KEY (work_id, genre_id)
);

CREATE TABLE IF NOT EXISTS book_series (
	work_id      TEXT NOT NULL REFERENCES book(work_id),
	series_id    TEXT NOT NULL REFERENCES series(goodreads_id),
	series_order TEXT,
	PRIMARY KEY (work_id, series_id)
);

CREATE TABLE IF NOT EXISTS book_scraped (
	goodreads_id TEXT PRIMARY KEY,
	work_id      TEXT,
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);
`
