package evaluation

import "fmt"

var ErrCycleNotFound = fmt.Errorf("evaluation cycle not found")
var ErrClassNotFound = fmt.Errorf("class not found")
var ErrEvaluationNotFound = fmt.Errorf("evaluation not found")
var ErrResponseNotFound = fmt.Errorf("response not found")
