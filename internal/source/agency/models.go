package agency

// kosmesPage is a cursor-paginated page of the KOSMES program feed.
type kosmesPage struct {
	Data       []map[string]any `json:"data"`
	NextCursor *string          `json:"next_cursor"`
}

// semasPage is an offset-paginated page of the SEMAS program feed.
type semasPage struct {
	Total    int              `json:"total"`
	Offset   int              `json:"offset"`
	Limit    int              `json:"limit"`
	Programs []map[string]any `json:"programs"`
}
