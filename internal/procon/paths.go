package procon

// Device endpoints. They are fixed by the controller firmware.
const (
	PathGetState = "/GetState.csv"
	PathUsrCfg   = "/usrcfg.cgi"
	PathCommand  = "/Command.htm"
	PathGetDMX   = "/GetDmx.csv"
)
