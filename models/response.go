package models

// Response is the envelope every catalog endpoint answers with.
type Response struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	Message    string      `json:"message,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

func NewPagination(page, limit int, total int64) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}

func SuccessResponse(data any) Response {
	return Response{Success: true, Data: data}
}

func ErrorResponse(message string) Response {
	return Response{Success: false, Error: message}
}
