package core

// DBOrdering is a single ORDER BY term for list queries. Repositories decide
// which fields are orderable; unknown fields are ignored, never an error.
type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
