package dialect

const (
	Heartbeat       = 0   // out message    vehicle type, autopilot, mode, state
	SystemTime      = 2   // out message    unix time (usec) and boot time (ms)
	SetMode         = 11  // in message     deprecated mode switch, prefer DoSetMode
	CommandLong     = 76  // in message     command with seven float params
	Timesync        = 111 // in/out message clock synchronisation, tc1/ts1 in ns
	EkfStatusReport = 193 // out message    EKF variances and flags (ardupilotmega)
	GpsInput        = 232 // in message     raw GPS sample injected into the autopilot
	Statustext      = 253 // out message    text with severity
)

// Command ids carried in COMMAND_LONG.command.
const (
	CmdDoSetMode = 176
)

const (
	// 0xD9 = custom mode enabled | guided | stabilize | manual input | safety armed
	BaseModeArmedCustom = 0xD9

	CopterModeLand = 9
)

// CommandLongData mirrors COMMAND_LONG. Values returns wire order.
type CommandLongData struct {
	Params          [7]float32
	Command         uint16
	TargetSystem    uint8
	TargetComponent uint8
	Confirmation    uint8
}

func (c CommandLongData) Values() []interface{} {
	v := make([]interface{}, 0, 11)
	for _, p := range c.Params {
		v = append(v, p)
	}
	return append(v, c.Command, c.TargetSystem, c.TargetComponent, c.Confirmation)
}

// DoSetMode builds MAV_CMD_DO_SET_MODE for the given target and custom mode.
func DoSetMode(targetSystem uint8, baseMode, customMode float32) CommandLongData {
	return CommandLongData{
		Params:       [7]float32{baseMode, customMode},
		Command:      CmdDoSetMode,
		TargetSystem: targetSystem,
	}
}

// GpsInputData mirrors GPS_INPUT, the message ArduPilot accepts from an
// external GPS source.
type GpsInputData struct {
	TimeUsec          uint64
	TimeWeekMs        uint32
	Lat               int32 // degE7
	Lon               int32 // degE7
	Alt               float32
	Hdop              float32
	Vdop              float32
	Vn                float32
	Ve                float32
	Vd                float32
	SpeedAccuracy     float32
	HorizAccuracy     float32
	VertAccuracy      float32
	IgnoreFlags       uint16
	TimeWeek          uint16
	GpsID             uint8
	FixType           uint8
	SatellitesVisible uint8
	Yaw               uint16 // cdeg, 0 = unknown
}

func (g GpsInputData) Values() []interface{} {
	return []interface{}{
		g.TimeUsec, g.TimeWeekMs, g.Lat, g.Lon,
		g.Alt, g.Hdop, g.Vdop, g.Vn, g.Ve, g.Vd,
		g.SpeedAccuracy, g.HorizAccuracy, g.VertAccuracy,
		g.IgnoreFlags, g.TimeWeek, g.GpsID, g.FixType, g.SatellitesVisible, g.Yaw,
	}
}

// TimesyncData mirrors TIMESYNC without its extensions.
type TimesyncData struct {
	Tc1 int64
	Ts1 int64
}

// SystemTimeData mirrors SYSTEM_TIME.
type SystemTimeData struct {
	TimeUnixUsec uint64
	TimeBootMs   uint32
}
