package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultActivity ResultType = "activity"
	ResultTopic    ResultType = "topic"
	ResultSubTask  ResultType = "subtask"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         int64      `json:"id"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	ActivityID int64      `json:"activity_id"`
}

// Query describes a search request.
type Query struct {
	Text             string
	FilterType       ResultType // empty = all types
	FilterActivityID int64      // 0 = all activities
	Limit            int
	Offset           int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexActivity(a ActivityRecord) error
	IndexTopic(t TopicRecord) error
	IndexSubTask(st SubTaskRecord) error
	DeleteActivity(id int64) error
	DeleteTopic(id int64) error
	DeleteSubTask(id int64) error
}

// ActivityRecord is the data we index for an activity.
type ActivityRecord struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	OwnerID     int64  `json:"ownerId"`
}

// TopicRecord is the data we index for a topic.
type TopicRecord struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ActivityID  int64  `json:"activityId"`
}

// SubTaskRecord is the data we index for a subtask.
type SubTaskRecord struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	TopicID     int64  `json:"topicId"`
	ActivityID  int64  `json:"activityId"`
}
