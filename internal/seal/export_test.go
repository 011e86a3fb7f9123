package seal

var (
	UnlockTransitionsTotal = unlockTransitionsTotal
	IntegrityFailuresTotal = integrityFailuresTotal
)
