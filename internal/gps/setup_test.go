package gps

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetupCommands(t *testing.T) {
	tests := []struct {
		name  string
		setup Setup
		want  []string
	}{
		{
			name:  "all constellations with save",
			setup: Setup{GPS: true, GLONASS: true, Galileo: true, BeiDou: true, IntervalMs: 1000, Save: true},
			want: []string{
				"PQGNSS,1,1,1,1,1,0",
				"PQTMCFGPMODE,1000",
				"PMTK314,0,1,0,1,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0",
				"PMTK220,1000",
				"PQTMCFGMSG,RMC,1",
				"PQTMCFGMSG,GGA,1",
				"PQTMSAVEPAR",
			},
		},
		{
			name:  "gps and galileo only, interval clamped",
			setup: Setup{GPS: true, Galileo: true, IntervalMs: 100},
			want: []string{
				"PQGNSS,1,1,0,1,0,0",
				"PQTMCFGPMODE,200",
				"PMTK314,0,1,0,1,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0",
				"PMTK220,200",
				"PQTMCFGMSG,RMC,1",
				"PQTMCFGMSG,GGA,1",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.setup.Commands())
		})
	}
}
