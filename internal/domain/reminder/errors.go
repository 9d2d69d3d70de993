package reminder

import "fmt"

var ErrJobNotFound = fmt.Errorf("reminder job not found")
var ErrNotificationNotPending = fmt.Errorf("notification is not pending")
var ErrDuplicateRound = fmt.Errorf("notification round already exists for student")
