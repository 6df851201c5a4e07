package tasks

import "strings"

// DefaultLimit is the page size used when none is given.
const DefaultLimit = 10

// Filter returns the tasks matching p. Search is a case-insensitive substring
// match over title and description. Status is StatusCompleted or
// StatusIncomplete; any other value matches everything. Category and priority
// match exactly when set.
func Filter(tasks []Task, p ListParams) []Task {
	search := strings.ToLower(p.Search)
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if search != "" &&
			!strings.Contains(strings.ToLower(t.Title), search) &&
			!strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		switch p.Status {
		case StatusCompleted:
			if !t.Completed {
				continue
			}
		case StatusIncomplete:
			if t.Completed {
				continue
			}
		}
		if p.Category != "" && t.Category != p.Category {
			continue
		}
		if p.Priority != "" && t.Priority != p.Priority {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Paginate slices tasks into the 1-based page. Pages below 1 are treated as
// 1 and limits below 1 as DefaultLimit. A page past the end is empty.
func Paginate(tasks []Task, page, limit int) Page {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}

	total := len(tasks)
	start := (page - 1) * limit
	end := start + limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	data := make([]Task, end-start)
	copy(data, tasks[start:end])

	return Page{
		Data:       data,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}
}
