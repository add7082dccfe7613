package sheets

import "fmt"

func keyFor(userID int64, year, month int) string {
	return fmt.Sprintf("%04d-%02d/u%d", year, month, userID)
}
