package reports

// Schema creates the report table. One report per intake: a call id reused by
// a later intake gets its own report, told apart by call_received_at.
// Sealed columns hold "enc:v1:" values when a report key is configured.
const Schema = `
CREATE TABLE IF NOT EXISTS consultation_reports (
	id                  UUID PRIMARY KEY,
	call_id             TEXT NOT NULL,
	counselor_id        TEXT NOT NULL,
	phone               TEXT NOT NULL,
	client_name         TEXT NOT NULL DEFAULT '',
	client_age          INT,
	client_gender       TEXT NOT NULL DEFAULT '',
	memo                TEXT NOT NULL,
	risk_level_recorded SMALLINT NOT NULL CHECK (risk_level_recorded BETWEEN 1 AND 3),
	call_received_at    TIMESTAMPTZ NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL
);
ALTER TABLE consultation_reports DROP CONSTRAINT IF EXISTS consultation_reports_call_id_key;
CREATE UNIQUE INDEX IF NOT EXISTS consultation_reports_call_intake
	ON consultation_reports (call_id, call_received_at);
CREATE INDEX IF NOT EXISTS consultation_reports_counselor_created
	ON consultation_reports (counselor_id, created_at DESC);
`
