package card

import "time"

// Age returns the whole years elapsed between birth and now. The year
// difference is reduced by one until the birthday has passed in now's year.
func Age(birth, now time.Time) int {
	by, bm, bd := birth.Date()
	ny, nm, nd := now.Date()
	age := ny - by
	if nm < bm || (nm == bm && nd < bd) {
		age--
	}
	return age
}
