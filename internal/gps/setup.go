package gps

import "fmt"

// MinIntervalMs is the shortest fix interval most modules accept.
const MinIntervalMs = 200

// Setup selects the constellations and output rate sent to the receiver at
// startup. Command bodies are opaque to the rest of the program; they are
// only framed and checksummed.
type Setup struct {
	GPS        bool
	GLONASS    bool
	Galileo    bool
	BeiDou     bool
	IntervalMs int
	Save       bool // persist to receiver flash
}

// Commands returns the setup command bodies in the order they must be sent.
func (s Setup) Commands() []string {
	interval := s.IntervalMs
	if interval < MinIntervalMs {
		interval = MinIntervalMs
	}
	cmds := []string{
		// $PQGNSS,<mode>,<gps>,<glonass>,<galileo>,<beidou>,<reserved>
		fmt.Sprintf("PQGNSS,1,%d,%d,%d,%d,0", b2i(s.GPS), b2i(s.GLONASS), b2i(s.Galileo), b2i(s.BeiDou)),
		fmt.Sprintf("PQTMCFGPMODE,%d", interval),
		// MTK fallback: RMC and GGA every fix, everything else off
		"PMTK314,0,1,0,1,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0",
		fmt.Sprintf("PMTK220,%d", interval),
		"PQTMCFGMSG,RMC,1",
		"PQTMCFGMSG,GGA,1",
	}
	if s.Save {
		cmds = append(cmds, "PQTMSAVEPAR")
	}
	return cmds
}

func b2i(v bool) int {
	if v {
		return 1
	}
	return 0
}
