package model

// QueryResponse is the envelope returned by the dataset query endpoint.
type QueryResponse struct {
	Success    bool                     `json:"success"`
	Data       []map[string]interface{} `json:"data"`
	Pagination Pagination               `json:"pagination"`
	Meta       QueryMeta                `json:"meta"`
}

// Pagination describes the page returned and the size of the filtered set.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

// QueryMeta carries the projected columns, their types and the execution time.
type QueryMeta struct {
	Columns   []string          `json:"columns"`
	Types     map[string]string `json:"types"`
	QueryTime string            `json:"queryTime"`
}

// ErrorResponse is the standard envelope for error responses.
type ErrorResponse struct {
	Success bool                   `json:"success"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// ListResponse wraps management list endpoints.
type ListResponse struct {
	Success  bool        `json:"success"`
	Resource interface{} `json:"resource"`
	Count    int         `json:"count"`
}
