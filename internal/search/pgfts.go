package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across activities, topics, and subtasks
// using plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultActivity {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'activity'::text AS type, a.id, a.name AS title,
				ts_headline('simple', coalesce(a.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				a.id AS activity_id,
				ts_rank(a.search_vector, %s) AS rank
			FROM activities a
			WHERE a.search_vector @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultTopic {
		topicWhere := "t.search_vector @@ " + tsQuery
		if q.FilterActivityID != 0 {
			topicWhere += fmt.Sprintf(" AND t.activity_id = $%d", argN)
			args = append(args, q.FilterActivityID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'topic'::text AS type, t.id, t.title,
				ts_headline('simple', coalesce(t.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				t.activity_id,
				ts_rank(t.search_vector, %s) AS rank
			FROM topics t
			WHERE %s`, tsQuery, tsQuery, topicWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultSubTask {
		subtaskWhere := "st.search_vector @@ " + tsQuery
		if q.FilterActivityID != 0 {
			subtaskWhere += fmt.Sprintf(" AND t.activity_id = $%d", argN)
			args = append(args, q.FilterActivityID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'subtask'::text AS type, st.id, st.title,
				ts_headline('simple', coalesce(st.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				t.activity_id,
				ts_rank(st.search_vector, %s) AS rank
			FROM subtasks st
			JOIN topics t ON t.id = st.topic_id
			WHERE %s`, tsQuery, tsQuery, subtaskWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, activity_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ActivityID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ActivityRecord, []TopicRecord, []SubTaskRecord, error) {
	activityRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description, ''), owner_id
		FROM activities
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load activities: %w", err)
	}
	defer activityRows.Close()

	activities := make([]ActivityRecord, 0)
	for activityRows.Next() {
		var a ActivityRecord
		if err := activityRows.Scan(&a.ID, &a.Name, &a.Description, &a.OwnerID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan activity: %w", err)
		}
		activities = append(activities, a)
	}
	if err := activityRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate activities: %w", err)
	}

	topicRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, COALESCE(description, ''), activity_id
		FROM topics
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load topics: %w", err)
	}
	defer topicRows.Close()

	topics := make([]TopicRecord, 0)
	for topicRows.Next() {
		var t TopicRecord
		if err := topicRows.Scan(&t.ID, &t.Title, &t.Description, &t.ActivityID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	if err := topicRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate topics: %w", err)
	}

	subtaskRows, err := p.db.QueryContext(ctx, `
		SELECT st.id, st.title, COALESCE(st.description, ''), st.status, st.topic_id, t.activity_id
		FROM subtasks st
		JOIN topics t ON t.id = st.topic_id
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load subtasks: %w", err)
	}
	defer subtaskRows.Close()

	subtasks := make([]SubTaskRecord, 0)
	for subtaskRows.Next() {
		var st SubTaskRecord
		if err := subtaskRows.Scan(&st.ID, &st.Title, &st.Description, &st.Status, &st.TopicID, &st.ActivityID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan subtask: %w", err)
		}
		subtasks = append(subtasks, st)
	}
	if err := subtaskRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate subtasks: %w", err)
	}

	return activities, topics, subtasks, nil
}
