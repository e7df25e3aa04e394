// Package telemetry runs the sample-and-report loop.
package telemetry

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"sensornode-go/bus"
	"sensornode-go/errcode"
	"sensornode-go/services/config"
	"sensornode-go/services/hal"
	"sensornode-go/services/report"
	"sensornode-go/types"
	"sensornode-go/x/timex"

	cache "github.com/go-pkgz/expirable-cache/v3"
)

// Sender delivers one record.
type Sender interface {
	Send(ctx context.Context, r report.Record) error
}

// Recorder counts loop activity.
type Recorder interface {
	Cycle(d time.Duration)
	SensorRead(sensor, result string)
	Report(result string)
}

// Service reads every available sensor, reports, then sleeps a fixed
// interval. A failing sensor or post never stops the loop.
type Service struct {
	sensors  hal.SensorSet
	sender   Sender
	interval time.Duration
	log      *slog.Logger
	conn     *bus.Connection
	throttle cache.Cache[string, struct{}]

	// Recorder may be nil.
	Recorder Recorder
	// Sleep defaults to timex.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
	cycle uint64
}

// New builds the loop. conn may be nil when nothing watches the bus.
func New(cfg config.Telemetry, sensors hal.SensorSet, sender Sender, conn *bus.Connection, log *slog.Logger) *Service {
	return &Service{
		sensors:  sensors,
		sender:   sender,
		interval: cfg.Interval,
		log:      log.With("svc", "telemetry"),
		conn:     conn,
		throttle: cache.NewCache[string, struct{}]().WithTTL(cfg.LogThrottle).WithMaxKeys(64),
		Sleep:    timex.Sleep,
		now:      time.Now,
	}
}

// Run loops until ctx ends and returns its error.
func (s *Service) Run(ctx context.Context) error {
	s.publishInventory()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, _ = s.Cycle(ctx)
		if err := s.Sleep(ctx, s.interval); err != nil {
			return err
		}
	}
}

// Cycle performs one pass and returns the record it built (rounded) and the
// send error, which the loop ignores.
func (s *Service) Cycle(ctx context.Context) (report.Record, error) {
	start := s.now()
	s.cycle++

	rec := report.Record{}
	for _, slot := range s.sensors.Available() {
		id := slot.Sensor.ID
		sample, err := slot.Adaptor.Read(ctx)
		if err != nil {
			code := errcode.Of(err)
			s.readFailed(id, code, err)
			s.count(func(r Recorder) { r.SensorRead(id, string(code)) })
			s.publishSensor(slot, types.LinkDegraded, nil, string(code))
			continue
		}
		s.recovered(id)
		fields := slot.Fields(sample)
		for k, v := range fields {
			rec[k] = v
		}
		s.count(func(r Recorder) { r.SensorRead(id, string(errcode.OK)) })
		s.publishSensor(slot, types.LinkUp, report.Record(fields).Round2(), "")
		s.log.Debug("sensor read", "sensor", id, "fields", fields)
	}
	rec = rec.Round2()

	var err error
	result := "empty"
	if len(rec) > 0 {
		err = s.sender.Send(ctx, rec)
		result = string(errcode.Of(err))
		if err != nil {
			s.log.Error("report failed", "code", errcode.Of(err), "retryable", errcode.Retryable(err), "err", err)
		} else {
			s.log.Info("report sent", "cycle", s.cycle, "fields", len(rec))
		}
	} else {
		s.log.Warn("nothing to report", "cycle", s.cycle)
	}
	s.count(func(r Recorder) { r.Report(result) })
	s.publishReport(rec, err)
	s.count(func(r Recorder) { r.Cycle(s.now().Sub(start)) })
	return rec, err
}

// readFailed logs the first occurrence of a sensor/code pair per throttle
// window at warn and repeats at debug.
func (s *Service) readFailed(id string, code errcode.Code, err error) {
	key := id + "|" + string(code)
	if _, seen := s.throttle.Get(key); seen {
		s.log.Debug("sensor read failed", "sensor", id, "code", code, "err", err)
		return
	}
	s.throttle.Add(key, struct{}{})
	s.log.Warn("sensor read failed", "sensor", id, "code", code, "err", err)
}

func (s *Service) recovered(id string) {
	s.throttle.InvalidateFn(func(k string) bool { return strings.HasPrefix(k, id+"|") })
}

func (s *Service) count(f func(Recorder)) {
	if s.Recorder != nil {
		f(s.Recorder)
	}
}

func (s *Service) publishInventory() {
	for _, slot := range s.sensors {
		if slot.Available() {
			s.publishSensor(slot, types.LinkUp, nil, "")
		} else {
			s.publishSensor(slot, types.LinkDown, nil, string(errcode.Of(slot.Err)))
		}
	}
}

func (s *Service) publishSensor(slot hal.Slot, link types.Link, last map[string]float64, code string) {
	if s.conn == nil {
		return
	}
	st := types.SensorStatus{
		ID:    slot.Sensor.ID,
		Type:  slot.Sensor.Type,
		Link:  link,
		Last:  last,
		Error: code,
		TS:    s.now().UnixNano(),
	}
	s.conn.Publish(s.conn.NewMessage(types.TopicSensor(slot.Sensor.ID), st, true))
}

func (s *Service) publishReport(rec report.Record, err error) {
	if s.conn == nil {
		return
	}
	st := types.ReportStatus{
		Cycle:  s.cycle,
		Fields: rec,
		Sent:   len(rec) > 0 && err == nil,
		TS:     s.now().UnixNano(),
	}
	if err != nil {
		st.Error = string(errcode.Of(err))
	}
	s.conn.Publish(s.conn.NewMessage(types.TopicReport, st, true))
}
