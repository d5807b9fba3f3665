package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/normanking/divan/pkg/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// KNOWLEDGE OPERATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// CreateKnowledge inserts a new knowledge entry.
// The ID must be unique and non-empty.
func (s *Store) CreateKnowledge(ctx context.Context, entry *types.KnowledgeEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("knowledge entry ID cannot be empty")
	}
	if entry.Domain == "" {
		return fmt.Errorf("knowledge entry domain cannot be empty")
	}

	conceptJSON, err := json.Marshal(entry.ConceptTags)
	if err != nil {
		return fmt.Errorf("marshal concept tags: %w", err)
	}
	goalJSON, err := json.Marshal(entry.GoalTags)
	if err != nil {
		return fmt.Errorf("marshal goal tags: %w", err)
	}

	// Applicability is optional; NULL means unconstrained
	var applicability interface{}
	if entry.Applicability != nil {
		raw, err := json.Marshal(entry.Applicability)
		if err != nil {
			return fmt.Errorf("marshal applicability: %w", err)
		}
		applicability = string(raw)
	}

	var lastReinforced interface{}
	if !entry.LastReinforced.IsZero() {
		lastReinforced = entry.LastReinforced
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO knowledge_entries (
			id, domain, type, content, source,
			reinforcement_count, penalty_count, last_reinforced,
			concept_tags, goal_tags, applicability,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		entry.ID, entry.Domain, entry.Type, entry.Content, nullString(entry.Source),
		entry.ReinforcementCount, entry.PenaltyCount, lastReinforced,
		string(conceptJSON), string(goalJSON), applicability,
		createdAt, createdAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("knowledge entry %s already exists", entry.ID)
		}
		return fmt.Errorf("insert knowledge entry: %w", err)
	}

	return nil
}

// GetKnowledge retrieves a knowledge entry by ID.
// Returns ErrNotFound if no entry exists.
func (s *Store) GetKnowledge(ctx context.Context, id string) (*types.KnowledgeEntry, error) {
	row := s.db.QueryRowContext(ctx, selectKnowledge+` WHERE id = ?`, id)

	entry, err := scanKnowledge(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("knowledge entry %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("query knowledge entry: %w", err)
	}

	return entry, nil
}

// ListKnowledge returns every knowledge entry, newest first.
func (s *Store) ListKnowledge(ctx context.Context) ([]*types.KnowledgeEntry, error) {
	rows, err := s.db.QueryContext(ctx, selectKnowledge+` ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query knowledge entries: %w", err)
	}
	defer rows.Close()

	return collectKnowledge(rows)
}

// ListKnowledgeByDomain returns the entries whose domain matches exactly.
func (s *Store) ListKnowledgeByDomain(ctx context.Context, domain string) ([]*types.KnowledgeEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		selectKnowledge+` WHERE domain = ? ORDER BY created_at DESC, id`, domain)
	if err != nil {
		return nil, fmt.Errorf("query knowledge entries by domain: %w", err)
	}
	defer rows.Close()

	return collectKnowledge(rows)
}

// ReinforceKnowledge increments the reinforcement counter and stamps the
// reinforcement time. Returns ErrNotFound for unknown IDs.
func (s *Store) ReinforceKnowledge(ctx context.Context, id string) error {
	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE knowledge_entries
		SET reinforcement_count = reinforcement_count + 1,
		    last_reinforced = ?,
		    updated_at = ?
		WHERE id = ?
	`, now, now, id)
	if err != nil {
		return fmt.Errorf("reinforce knowledge entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reinforce rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("knowledge entry %s: %w", id, ErrNotFound)
	}

	return nil
}

// PenalizeKnowledge increments the penalty counter. The reinforcement
// timestamp is untouched: penalties age an entry, never refresh it.
func (s *Store) PenalizeKnowledge(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE knowledge_entries
		SET penalty_count = penalty_count + 1,
		    updated_at = ?
		WHERE id = ?
	`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("penalize knowledge entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("penalize rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("knowledge entry %s: %w", id, ErrNotFound)
	}

	return nil
}

// CountKnowledge returns the number of stored knowledge entries.
func (s *Store) CountKnowledge(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_entries`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count knowledge entries: %w", err)
	}
	return count, nil
}

const selectKnowledge = `
	SELECT
		id, domain, type, content, source,
		reinforcement_count, penalty_count, last_reinforced,
		concept_tags, goal_tags, applicability,
		created_at, updated_at
	FROM knowledge_entries`

// scanner abstracts *sql.Row and *sql.Rows for the shared scan helpers.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanKnowledge(sc scanner) (*types.KnowledgeEntry, error) {
	var entry types.KnowledgeEntry
	var source, conceptJSON, goalJSON, applicabilityJSON sql.NullString
	var lastReinforced sql.NullTime

	err := sc.Scan(
		&entry.ID, &entry.Domain, &entry.Type, &entry.Content, &source,
		&entry.ReinforcementCount, &entry.PenaltyCount, &lastReinforced,
		&conceptJSON, &goalJSON, &applicabilityJSON,
		&entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if source.Valid {
		entry.Source = source.String
	}
	if lastReinforced.Valid {
		entry.LastReinforced = lastReinforced.Time
	}
	if conceptJSON.Valid && conceptJSON.String != "" {
		if err := json.Unmarshal([]byte(conceptJSON.String), &entry.ConceptTags); err != nil {
			return nil, fmt.Errorf("unmarshal concept tags: %w", err)
		}
	}
	if goalJSON.Valid && goalJSON.String != "" {
		if err := json.Unmarshal([]byte(goalJSON.String), &entry.GoalTags); err != nil {
			return nil, fmt.Errorf("unmarshal goal tags: %w", err)
		}
	}
	if applicabilityJSON.Valid && applicabilityJSON.String != "" {
		var app types.Applicability
		if err := json.Unmarshal([]byte(applicabilityJSON.String), &app); err != nil {
			return nil, fmt.Errorf("unmarshal applicability: %w", err)
		}
		entry.Applicability = &app
	}

	return &entry, nil
}

func collectKnowledge(rows *sql.Rows) ([]*types.KnowledgeEntry, error) {
	var entries []*types.KnowledgeEntry
	for rows.Next() {
		entry, err := scanKnowledge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan knowledge entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return entries, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// DECISION OPERATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// CreateDecision persists a completed decision record.
// Returns ErrDuplicateDecision if the ID was already used; records are never
// overwritten.
func (s *Store) CreateDecision(ctx context.Context, rec *types.DecisionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("decision ID cannot be empty")
	}

	frameJSON, err := json.Marshal(rec.Frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	domainsJSON, err := json.Marshal(rec.Domains)
	if err != nil {
		return fmt.Errorf("marshal domains: %w", err)
	}
	councilJSON, err := json.Marshal(rec.Council)
	if err != nil {
		return fmt.Errorf("marshal council: %w", err)
	}
	judgesJSON, err := json.Marshal(rec.Judges)
	if err != nil {
		return fmt.Errorf("marshal judges: %w", err)
	}
	gateJSON, err := json.Marshal(rec.Gate)
	if err != nil {
		return fmt.Errorf("marshal gate: %w", err)
	}
	knowledgeJSON, err := json.Marshal(rec.KnowledgeIDs)
	if err != nil {
		return fmt.Errorf("marshal knowledge ids: %w", err)
	}
	featuresJSON, err := json.Marshal(rec.Features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO decisions (
			id, input, mode, frame, domains,
			council, judges, gate, candidate_quality,
			knowledge_ids, features, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.Input, rec.Mode, string(frameJSON), string(domainsJSON),
		string(councilJSON), string(judgesJSON), string(gateJSON), rec.CandidateQuality,
		string(knowledgeJSON), string(featuresJSON), createdAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("decision %s: %w", rec.ID, ErrDuplicateDecision)
		}
		return fmt.Errorf("insert decision: %w", err)
	}

	return nil
}

// GetDecision retrieves a decision record by ID.
// Returns ErrNotFound if no record exists.
func (s *Store) GetDecision(ctx context.Context, id string) (*types.DecisionRecord, error) {
	row := s.db.QueryRowContext(ctx, selectDecision+` WHERE id = ?`, id)

	rec, err := scanDecision(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("decision %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("query decision: %w", err)
	}

	return rec, nil
}

// ListDecisions returns decision records, newest first.
// A limit <= 0 applies the default of 50.
func (s *Store) ListDecisions(ctx context.Context, limit int) ([]*types.DecisionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		selectDecision+` ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var records []*types.DecisionRecord
	for rows.Next() {
		rec, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return records, nil
}

// CountDecisions returns the number of stored decisions.
func (s *Store) CountDecisions(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM decisions`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count decisions: %w", err)
	}
	return count, nil
}

const selectDecision = `
	SELECT
		id, input, mode, frame, domains,
		council, judges, gate, candidate_quality,
		knowledge_ids, features, created_at
	FROM decisions`

func scanDecision(sc scanner) (*types.DecisionRecord, error) {
	var rec types.DecisionRecord
	var frameJSON, domainsJSON, councilJSON, gateJSON, featuresJSON string
	var judgesJSON, knowledgeJSON sql.NullString

	err := sc.Scan(
		&rec.ID, &rec.Input, &rec.Mode, &frameJSON, &domainsJSON,
		&councilJSON, &judgesJSON, &gateJSON, &rec.CandidateQuality,
		&knowledgeJSON, &featuresJSON, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(frameJSON), &rec.Frame); err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}
	if err := json.Unmarshal([]byte(domainsJSON), &rec.Domains); err != nil {
		return nil, fmt.Errorf("unmarshal domains: %w", err)
	}
	if err := json.Unmarshal([]byte(councilJSON), &rec.Council); err != nil {
		return nil, fmt.Errorf("unmarshal council: %w", err)
	}
	if judgesJSON.Valid && judgesJSON.String != "" {
		if err := json.Unmarshal([]byte(judgesJSON.String), &rec.Judges); err != nil {
			return nil, fmt.Errorf("unmarshal judges: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(gateJSON), &rec.Gate); err != nil {
		return nil, fmt.Errorf("unmarshal gate: %w", err)
	}
	if knowledgeJSON.Valid && knowledgeJSON.String != "" {
		if err := json.Unmarshal([]byte(knowledgeJSON.String), &rec.KnowledgeIDs); err != nil {
			return nil, fmt.Errorf("unmarshal knowledge ids: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(featuresJSON), &rec.Features); err != nil {
		return nil, fmt.Errorf("unmarshal features: %w", err)
	}

	return &rec, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// OUTCOME OPERATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// UpsertOutcome records the observed outcome for a decision. Recording the
// same decision again replaces the previous outcome in place, so repeated
// reports never stack training samples.
func (s *Store) UpsertOutcome(ctx context.Context, rec *types.OutcomeRecord) error {
	if rec.DecisionID == "" {
		return fmt.Errorf("outcome decision ID cannot be empty")
	}

	recordedAt := rec.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	query := `
		INSERT INTO outcomes (
			decision_id, success, regret_score, recovery_time_days,
			secondary_damage, notes, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(decision_id) DO UPDATE SET
			success = excluded.success,
			regret_score = excluded.regret_score,
			recovery_time_days = excluded.recovery_time_days,
			secondary_damage = excluded.secondary_damage,
			notes = excluded.notes,
			recorded_at = excluded.recorded_at
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.DecisionID, rec.Success, rec.RegretScore, rec.RecoveryTimeDays,
		rec.SecondaryDamage, nullString(rec.Notes), recordedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert outcome: %w", err)
	}

	return nil
}

// GetOutcome retrieves the outcome for a decision.
// Returns ErrNotFound if no outcome was recorded.
func (s *Store) GetOutcome(ctx context.Context, decisionID string) (*types.OutcomeRecord, error) {
	row := s.db.QueryRowContext(ctx, selectOutcome+` WHERE decision_id = ?`, decisionID)

	rec, err := scanOutcome(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("outcome for decision %s: %w", decisionID, ErrNotFound)
		}
		return nil, fmt.Errorf("query outcome: %w", err)
	}

	return rec, nil
}

// ListOutcomes returns every recorded outcome, newest first.
func (s *Store) ListOutcomes(ctx context.Context) ([]*types.OutcomeRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectOutcome+` ORDER BY recorded_at DESC, decision_id`)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var records []*types.OutcomeRecord
	for rows.Next() {
		rec, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return records, nil
}

const selectOutcome = `
	SELECT
		decision_id, success, regret_score, recovery_time_days,
		secondary_damage, notes, recorded_at
	FROM outcomes`

func scanOutcome(sc scanner) (*types.OutcomeRecord, error) {
	var rec types.OutcomeRecord
	var notes sql.NullString

	err := sc.Scan(
		&rec.DecisionID, &rec.Success, &rec.RegretScore, &rec.RecoveryTimeDays,
		&rec.SecondaryDamage, &notes, &rec.RecordedAt,
	)
	if err != nil {
		return nil, err
	}

	if notes.Valid {
		rec.Notes = notes.String
	}

	return &rec, nil
}

// DecisionOutcome pairs a decision with its recorded outcome.
type DecisionOutcome struct {
	Decision *types.DecisionRecord
	Outcome  *types.OutcomeRecord
}

// ListDecisionOutcomePairs returns every decision that has a recorded
// outcome, joined for training. Pairs are ordered oldest outcome first so
// training replays history in observation order.
func (s *Store) ListDecisionOutcomePairs(ctx context.Context) ([]DecisionOutcome, error) {
	query := `
		SELECT
			d.id, d.input, d.mode, d.frame, d.domains,
			d.council, d.judges, d.gate, d.candidate_quality,
			d.knowledge_ids, d.features, d.created_at,
			o.decision_id, o.success, o.regret_score, o.recovery_time_days,
			o.secondary_damage, o.notes, o.recorded_at
		FROM outcomes o
		JOIN decisions d ON d.id = o.decision_id
		ORDER BY o.recorded_at, o.decision_id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query decision outcome pairs: %w", err)
	}
	defer rows.Close()

	var pairs []DecisionOutcome
	for rows.Next() {
		var dec types.DecisionRecord
		var out types.OutcomeRecord
		var frameJSON, domainsJSON, councilJSON, gateJSON, featuresJSON string
		var judgesJSON, knowledgeJSON, notes sql.NullString

		err := rows.Scan(
			&dec.ID, &dec.Input, &dec.Mode, &frameJSON, &domainsJSON,
			&councilJSON, &judgesJSON, &gateJSON, &dec.CandidateQuality,
			&knowledgeJSON, &featuresJSON, &dec.CreatedAt,
			&out.DecisionID, &out.Success, &out.RegretScore, &out.RecoveryTimeDays,
			&out.SecondaryDamage, &notes, &out.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan decision outcome pair: %w", err)
		}

		if err := json.Unmarshal([]byte(frameJSON), &dec.Frame); err != nil {
			return nil, fmt.Errorf("unmarshal frame: %w", err)
		}
		if err := json.Unmarshal([]byte(domainsJSON), &dec.Domains); err != nil {
			return nil, fmt.Errorf("unmarshal domains: %w", err)
		}
		if err := json.Unmarshal([]byte(councilJSON), &dec.Council); err != nil {
			return nil, fmt.Errorf("unmarshal council: %w", err)
		}
		if judgesJSON.Valid && judgesJSON.String != "" {
			if err := json.Unmarshal([]byte(judgesJSON.String), &dec.Judges); err != nil {
				return nil, fmt.Errorf("unmarshal judges: %w", err)
			}
		}
		if err := json.Unmarshal([]byte(gateJSON), &dec.Gate); err != nil {
			return nil, fmt.Errorf("unmarshal gate: %w", err)
		}
		if knowledgeJSON.Valid && knowledgeJSON.String != "" {
			if err := json.Unmarshal([]byte(knowledgeJSON.String), &dec.KnowledgeIDs); err != nil {
				return nil, fmt.Errorf("unmarshal knowledge ids: %w", err)
			}
		}
		if err := json.Unmarshal([]byte(featuresJSON), &dec.Features); err != nil {
			return nil, fmt.Errorf("unmarshal features: %w", err)
		}
		if notes.Valid {
			out.Notes = notes.String
		}

		pairs = append(pairs, DecisionOutcome{Decision: &dec, Outcome: &out})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return pairs, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// LEARNED PRIOR OPERATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// LearnedPrior is one persisted bucket of learned type weights.
type LearnedPrior struct {
	Bucket      string            `json:"bucket"`
	Weights     types.TypeWeights `json:"weights"`
	SampleCount int               `json:"sample_count"`
	Confidence  float64           `json:"confidence"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// UpsertPrior stores the learned weights for a situation bucket, replacing
// any previous row. Weights are clamped into the safety band before the
// write; the disk never holds an out-of-band multiplier.
func (s *Store) UpsertPrior(ctx context.Context, prior *LearnedPrior) error {
	if prior.Bucket == "" {
		return fmt.Errorf("prior bucket cannot be empty")
	}

	weights := prior.Weights
	weights.Clamp()

	query := `
		INSERT INTO learned_priors (
			bucket, principle_weight, rule_weight, warning_weight,
			claim_weight, advice_weight, sample_count, confidence, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bucket) DO UPDATE SET
			principle_weight = excluded.principle_weight,
			rule_weight = excluded.rule_weight,
			warning_weight = excluded.warning_weight,
			claim_weight = excluded.claim_weight,
			advice_weight = excluded.advice_weight,
			sample_count = excluded.sample_count,
			confidence = excluded.confidence,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		prior.Bucket, weights.Principle, weights.Rule, weights.Warning,
		weights.Claim, weights.Advice, prior.SampleCount, prior.Confidence, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("upsert prior: %w", err)
	}

	return nil
}

// ListPriors returns every learned prior, ordered by bucket name.
func (s *Store) ListPriors(ctx context.Context) ([]*LearnedPrior, error) {
	query := `
		SELECT
			bucket, principle_weight, rule_weight, warning_weight,
			claim_weight, advice_weight, sample_count, confidence, updated_at
		FROM learned_priors
		ORDER BY bucket
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query priors: %w", err)
	}
	defer rows.Close()

	var priors []*LearnedPrior
	for rows.Next() {
		var p LearnedPrior
		err := rows.Scan(
			&p.Bucket, &p.Weights.Principle, &p.Weights.Rule, &p.Weights.Warning,
			&p.Weights.Claim, &p.Weights.Advice, &p.SampleCount, &p.Confidence, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan prior: %w", err)
		}
		priors = append(priors, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return priors, nil
}

// ResetPriors deletes every learned prior. The next training pass rebuilds
// them from the decision/outcome history.
func (s *Store) ResetPriors(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM learned_priors`); err != nil {
		return fmt.Errorf("reset priors: %w", err)
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// STATS
// ═══════════════════════════════════════════════════════════════════════════════

// StoreStats summarizes the persisted state for the stats command.
type StoreStats struct {
	KnowledgeEntries int     `json:"knowledge_entries"`
	Decisions        int     `json:"decisions"`
	Outcomes         int     `json:"outcomes"`
	TrainedBuckets   int     `json:"trained_buckets"`
	SuccessRate      float64 `json:"success_rate"` // over recorded outcomes; 0 when none
}

// Stats gathers row counts and the historical success rate.
func (s *Store) Stats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{}

	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM knowledge_entries`, &stats.KnowledgeEntries},
		{`SELECT COUNT(*) FROM decisions`, &stats.Decisions},
		{`SELECT COUNT(*) FROM outcomes`, &stats.Outcomes},
		{`SELECT COUNT(*) FROM learned_priors`, &stats.TrainedBuckets},
	}

	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("gather stats: %w", err)
		}
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(success), 0) FROM outcomes`).Scan(&stats.SuccessRate)
	if err != nil {
		return nil, fmt.Errorf("gather success rate: %w", err)
	}

	return stats, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

// nullString converts an empty string to a NULL-able value.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint
// failure. The driver exposes no typed error for this, so the message is
// the contract.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
