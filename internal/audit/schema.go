package audit

// Schema creates the append-only audit table and blocks UPDATE and DELETE.
const Schema = `
CREATE TABLE IF NOT EXISTS dispatch_audit_events (
	id           UUID PRIMARY KEY,
	type         TEXT NOT NULL,
	call_id      TEXT,
	counselor_id TEXT,
	actor_role   TEXT,
	risk_level   SMALLINT NOT NULL DEFAULT 0,
	message      TEXT NOT NULL DEFAULT '',
	metadata     JSONB,
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS dispatch_audit_events_call ON dispatch_audit_events (call_id, created_at);
CREATE OR REPLACE FUNCTION dispatch_audit_events_immutable() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION 'dispatch_audit_events is append-only';
END;
$$ LANGUAGE plpgsql;
DROP TRIGGER IF EXISTS dispatch_audit_events_no_change ON dispatch_audit_events;
CREATE TRIGGER dispatch_audit_events_no_change
	BEFORE UPDATE OR DELETE ON dispatch_audit_events
	FOR EACH ROW EXECUTE FUNCTION dispatch_audit_events_immutable();
`
