package activity

// ListActivityOptions provides filtering options for listing activity.
type ListActivityOptions struct {
	ProjectID    string
	Tool         string
	SessionID    *string
	ActivityType *ActivityType
	Limit        int
	Offset       int
}

// DefaultLimit caps listings that don't set a limit.
const DefaultLimit = 50
