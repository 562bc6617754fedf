package consts

import "strings"

type SortOrder bool

const (
	Ascending  = SortOrder(false)
	Descending = SortOrder(true)
)

func SortOrderFromString(s string) SortOrder {
	if strings.EqualFold(s, "desc") {
		return Descending
	}
	return Ascending
}
