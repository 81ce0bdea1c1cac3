package store

// Query constants. Placeholders are written as ? and rebound per driver.
const (
	maxViolationIDQuery = `SELECT COALESCE(MAX(vid), 0) FROM violation`
	maxRepairIDQuery    = `SELECT COALESCE(MAX(id), 0) FROM repair`
	maxAuditIDQuery     = `SELECT COALESCE(MAX(id), 0) FROM audit`
	maxTrainingIDQuery  = `SELECT COALESCE(MAX(id), 0) FROM training`

	violatedColumnsQuery = `
		SELECT DISTINCT tablename, attribute FROM violation
		ORDER BY tablename, attribute`

	violatedTuplesQuery = `
		SELECT DISTINCT tupleid FROM violation
		WHERE tablename = ? AND attribute = ?
		ORDER BY tupleid`

	fixesOfCellQuery = `
		SELECT id, vid, c1_tupleid, c1_tablename, c1_attribute, c1_value, op,
		       c2_tupleid, c2_tablename, c2_attribute, c2_value
		FROM repair
		WHERE (c1_tablename = ? AND c1_attribute = ? AND c1_tupleid = ?)
		   OR (c2_tablename = ? AND c2_attribute = ? AND c2_tupleid = ?)
		ORDER BY id`

	// Repair rows of violations that touch the cell, restricted to pairs on the same attribute.
	repairPartnersQuery = `
		SELECT c1_tupleid, c2_tupleid FROM repair
		WHERE c1_attribute = ? AND c2_attribute = ?
		  AND vid IN (SELECT vid FROM violation WHERE tablename = ? AND tupleid = ? AND attribute = ?)`

	deleteRepairsTouchingQuery = `
		DELETE FROM repair
		WHERE vid IN (SELECT vid FROM violation WHERE tablename = ? AND tupleid = ? AND attribute = ?)`

	deleteViolationsTouchingQuery = `
		DELETE FROM violation
		WHERE vid IN (SELECT vid FROM violation WHERE tablename = ? AND tupleid = ? AND attribute = ?)`

	deleteRuleRepairsQuery = `
		DELETE FROM repair WHERE vid IN (SELECT vid FROM violation WHERE rid = ?)`

	deleteRuleViolationsQuery = `DELETE FROM violation WHERE rid = ?`

	insertAuditQuery = `
		INSERT INTO audit (id, vid, tupleid, tablename, attribute, oldvalue, newvalue, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	auditLogQuery = `
		SELECT id, vid, tupleid, tablename, attribute, oldvalue, newvalue, time
		FROM audit ORDER BY id`

	trainingSetQuery = `
		SELECT tupleid, attribute, proposed, similarity, label
		FROM training WHERE tablename = ? ORDER BY id`

	violationRowsQuery = `
		SELECT vid, rid, tablename, tupleid, attribute, value
		FROM violation ORDER BY vid, tupleid, attribute`

	statsQuery = `
		SELECT
			(SELECT COUNT(DISTINCT vid) FROM violation),
			(SELECT COUNT(*) FROM violation),
			(SELECT COUNT(*) FROM repair),
			(SELECT COUNT(*) FROM audit),
			(SELECT COUNT(*) FROM (SELECT DISTINCT tablename, attribute FROM violation) v)`
)

const (
	violationColumns = "vid, rid, tablename, tupleid, attribute, value"
	trainingColumns  = "id, session, tablename, tupleid, attribute, proposed, similarity, label"
	repairColumns    = "id, vid, c1_tupleid, c1_tablename, c1_attribute, c1_value, op, c2_tupleid, c2_tablename, c2_attribute, c2_value"

	// Both sqlite (32766) and postgres (65535) accept this many bind parameters per statement.
	maxBindParams = 32000
)
