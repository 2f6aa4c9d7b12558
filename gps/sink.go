package gps

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/gtu-nova/mavsign/dialect"
	"github.com/gtu-nova/mavsign/link"
	"github.com/gtu-nova/mavsign/mavlink"
)

// DefaultJSONTarget is where MAVProxy's GPSInput module listens.
const DefaultJSONTarget = "127.0.0.1:25100"

// jsonSample is the datagram layout the GPSInput module parses.
type jsonSample struct {
	TimeUsec          uint64  `json:"time_usec"`
	GpsID             uint8   `json:"gps_id"`
	IgnoreFlags       uint16  `json:"ignore_flags"`
	TimeWeekMs        uint32  `json:"time_week_ms"`
	TimeWeek          uint16  `json:"time_week"`
	FixType           uint8   `json:"fix_type"`
	Lat               int32   `json:"lat"`
	Lon               int32   `json:"lon"`
	Alt               float32 `json:"alt"`
	Hdop              float32 `json:"hdop"`
	Vdop              float32 `json:"vdop"`
	Vn                float32 `json:"vn"`
	Ve                float32 `json:"ve"`
	Vd                float32 `json:"vd"`
	SpeedAccuracy     float32 `json:"speed_accuracy"`
	HorizAccuracy     float32 `json:"horiz_accuracy"`
	VertAccuracy      float32 `json:"vert_accuracy"`
	SatellitesVisible uint8   `json:"satellites_visible"`
}

func MarshalJSON(s dialect.GpsInputData) ([]byte, error) {
	return json.Marshal(jsonSample{
		TimeUsec:          s.TimeUsec,
		GpsID:             s.GpsID,
		IgnoreFlags:       s.IgnoreFlags,
		TimeWeekMs:        s.TimeWeekMs,
		TimeWeek:          s.TimeWeek,
		FixType:           s.FixType,
		Lat:               s.Lat,
		Lon:               s.Lon,
		Alt:               s.Alt,
		Hdop:              s.Hdop,
		Vdop:              s.Vdop,
		Vn:                s.Vn,
		Ve:                s.Ve,
		Vd:                s.Vd,
		SpeedAccuracy:     s.SpeedAccuracy,
		HorizAccuracy:     s.HorizAccuracy,
		VertAccuracy:      s.VertAccuracy,
		SatellitesVisible: s.SatellitesVisible,
	})
}

// JSONSink sends each sample as one JSON datagram.
type JSONSink struct {
	conn net.Conn
}

func NewJSONSink(target string) (*JSONSink, error) {
	conn, err := net.Dial("udp", target)
	if err != nil {
		return nil, fmt.Errorf("can't reach %s: %w", target, err)
	}
	return &JSONSink{conn: conn}, nil
}

func (j *JSONSink) Send(s dialect.GpsInputData) error {
	b, err := MarshalJSON(s)
	if err != nil {
		return err
	}
	_, err = j.conn.Write(b)
	return err
}

func (j *JSONSink) Close() error {
	return j.conn.Close()
}

// MAVLinkSink signs each sample as GPS_INPUT and sends it over a link.
type MAVLinkSink struct {
	link *link.Link
	def  *mavlink.MessageDefinition
	// Time selects the signing timestamp for every packet.
	Time mavlink.TimestampInput
}

func NewMAVLinkSink(l *link.Link, def *mavlink.MessageDefinition) *MAVLinkSink {
	return &MAVLinkSink{link: l, def: def, Time: mavlink.OffsetTime(0)}
}

func (m *MAVLinkSink) Send(s dialect.GpsInputData) error {
	msg, err := mavlink.NewMessage(m.def, s.Values()...)
	if err != nil {
		return err
	}
	_, _, err = m.link.Send(msg, m.Time)
	return err
}
