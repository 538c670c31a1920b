package calendar

import (
	"fmt"
	"time"
)

// Portuguese month names, capitalized the way the assistant presents them.
var monthsPtBR = [...]string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

// FormatLocalized renders a UTC instant in the given business timezone as
// "<day> de <Month> às <HH:MM>". This string is the only representation
// shown to the user and doubles as the correlation-store lookup key, so it
// must be deterministic: same instant, same string. The location is an
// explicit argument; no process-wide locale state is touched.
func FormatLocalized(utc time.Time, loc *time.Location) string {
	local := utc.In(loc)
	return fmt.Sprintf("%02d de %s às %02d:%02d",
		local.Day(), monthsPtBR[local.Month()-1], local.Hour(), local.Minute())
}
