// Package control runs the vehicle's cooperative loop: distance sampling
// feeds the steering state machine and the speed PID, each gated by its
// own interval so none starves the others.
//
// Sampling runs on a dedicated worker goroutine because one sweep holds
// settle delays between channels; the worker hands finished samples to
// the loop over a latest-wins channel. Everything else — steering, speed,
// buzzer, rest writes — executes on the single loop goroutine, which is
// the only writer of vehicle state.
package control

import (
	"context"
	"log"
	"sync"
	"time"

	"rover-ng/internal/actuator"
	"rover-ng/internal/motor"
	"rover-ng/internal/observability"
	"rover-ng/internal/ranging"
	"rover-ng/internal/steering"
)

type Config struct {
	SensorInterval time.Duration
	RudderInterval time.Duration
	BuzzerInterval time.Duration
	PollPeriod     time.Duration

	CenterAngleDeg float64
	CruiseRPM      float64
	AvoidRPM       float64
}

// Snapshot is the loop's externally visible state, refreshed on every
// tick that changes something. Readers (HTTP, telemetry) get a copy.
type Snapshot struct {
	PowerOn bool   `json:"power_on"`
	Mode    string `json:"mode"`

	FrontDistance float64 `json:"front_distance"`
	LeftDistance  float64 `json:"left_distance"`
	RightDistance float64 `json:"right_distance"`

	RudderAngleDeg  float64 `json:"rudder_angle_deg"`
	RudderDirection string  `json:"rudder_direction"`

	DesiredRPM  float64 `json:"desired_rpm"`
	MotorRPM    float64 `json:"motor_rpm"`
	PWMDuty     float64 `json:"pwm_duty"`
	PIDIntegral float64 `json:"pid_integral"`

	LastSampleUTC string `json:"last_sample_utc,omitempty"`
}

type Vehicle struct {
	cfg   Config
	array *ranging.Array
	steer *steering.Controller
	motor *motor.Controller
	out   actuator.Outputs
	power *Power
	obs   *observability.Collector

	mu       sync.RWMutex
	snap     Snapshot
	buzzerOn bool
}

func New(cfg Config, array *ranging.Array, steer *steering.Controller, mot *motor.Controller, out actuator.Outputs, obs *observability.Collector) *Vehicle {
	if cfg.SensorInterval <= 0 {
		cfg.SensorInterval = 1 * time.Second
	}
	if cfg.RudderInterval <= 0 {
		cfg.RudderInterval = 100 * time.Millisecond
	}
	if cfg.BuzzerInterval <= 0 {
		cfg.BuzzerInterval = 500 * time.Millisecond
	}
	if cfg.PollPeriod <= 0 {
		cfg.PollPeriod = 10 * time.Millisecond
	}
	v := &Vehicle{
		cfg:   cfg,
		array: array,
		steer: steer,
		motor: mot,
		out:   out,
		power: &Power{},
		obs:   obs,
	}
	v.snap = Snapshot{
		Mode:            steer.Mode().String(),
		RudderAngleDeg:  steer.Angle(),
		RudderDirection: steer.Direction(),
	}
	if v.array != nil && obs != nil {
		v.array.OnTimeout = func(c ranging.Channel) {
			obs.EchoTimeouts.WithLabelValues(c.String()).Inc()
		}
	}
	return v
}

func (v *Vehicle) Power() *Power { return v.power }

func (v *Vehicle) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snap
}

// Run drives the loop until the context ends. The vehicle is left at rest
// on return.
func (v *Vehicle) Run(ctx context.Context) error {
	samples := make(chan ranging.Sample, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		v.sampleLoop(ctx, samples)
	}()
	defer wg.Wait()
	defer v.restTick()

	ticker := time.NewTicker(v.cfg.PollPeriod)
	defer ticker.Stop()

	var lastRudder, lastBuzzer, lastRest time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-samples:
			v.controlTick(s, time.Now())
		case now := <-ticker.C:
			if now.Sub(lastRudder) >= v.cfg.RudderInterval {
				lastRudder = now
				v.rudderTick(now)
			}
			if now.Sub(lastBuzzer) >= v.cfg.BuzzerInterval {
				lastBuzzer = now
				v.buzzerTick()
			}
			if !v.power.On() && now.Sub(lastRest) >= v.cfg.SensorInterval {
				lastRest = now
				v.restTick()
			}
		}
	}
}

// sampleLoop sweeps the array once per sensor interval while powered and
// hands the latest sample to the control loop, dropping a stale one if
// the loop has not consumed it yet.
func (v *Vehicle) sampleLoop(ctx context.Context, out chan ranging.Sample) {
	ticker := time.NewTicker(v.cfg.SensorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !v.power.On() {
				continue
			}
			s, err := v.array.Sample()
			if err != nil {
				log.Printf("control: sample failed: %v", err)
				continue
			}
			select {
			case out <- s:
			default:
				select {
				case <-out:
				default:
				}
				select {
				case out <- s:
				default:
				}
			}
		}
	}
}

// controlTick applies one sample: steering transitions, the RPM policy,
// and one speed-PID step.
func (v *Vehicle) controlTick(s ranging.Sample, now time.Time) {
	if !v.power.On() {
		return
	}

	v.steer.Evaluate(s, now)

	desired := v.cfg.CruiseRPM
	if v.steer.Mode() == steering.ModeAvoiding {
		desired = v.cfg.AvoidRPM
	}
	v.motor.SetDesired(desired)
	duty := v.motor.Update()
	if err := v.out.Motor.WriteDuty(duty); err != nil {
		log.Printf("control: motor write failed: %v", err)
	}

	if v.obs != nil {
		v.obs.ControlTicks.Inc()
		v.obs.SteeringMode.Set(float64(v.steer.Mode()))
		v.obs.MotorDuty.Set(duty)
		v.obs.MotorRPM.Set(v.motor.CurrentRPM())
	}

	v.mu.Lock()
	v.snap.PowerOn = true
	v.snap.Mode = v.steer.Mode().String()
	v.snap.FrontDistance = s.Front
	v.snap.LeftDistance = s.Left
	v.snap.RightDistance = s.Right
	v.snap.RudderDirection = v.steer.Direction()
	v.snap.DesiredRPM = desired
	v.snap.MotorRPM = v.motor.CurrentRPM()
	v.snap.PWMDuty = duty
	v.snap.PIDIntegral = v.motor.Integral()
	v.snap.LastSampleUTC = s.At.UTC().Format(time.RFC3339Nano)
	v.mu.Unlock()
}

// rudderTick advances the angle one smoothing step and writes the servo.
func (v *Vehicle) rudderTick(now time.Time) {
	if !v.power.On() {
		return
	}
	angle := v.steer.UpdateRudder(now)
	if err := v.out.Servo.WriteAngle(angle); err != nil {
		log.Printf("control: servo write failed: %v", err)
	}
	if v.obs != nil {
		v.obs.RudderAngle.Set(angle)
		v.obs.SteeringMode.Set(float64(v.steer.Mode()))
	}

	v.mu.Lock()
	v.snap.RudderAngleDeg = angle
	v.snap.Mode = v.steer.Mode().String()
	v.snap.RudderDirection = v.steer.Direction()
	v.mu.Unlock()
}

func (v *Vehicle) buzzerTick() {
	if v.power.On() && v.steer.Alarming() {
		v.buzzerOn = !v.buzzerOn
		if err := v.out.Buzzer.Set(v.buzzerOn); err != nil {
			log.Printf("control: buzzer write failed: %v", err)
		}
		return
	}
	if v.buzzerOn {
		v.buzzerOn = false
		if err := v.out.Buzzer.Set(false); err != nil {
			log.Printf("control: buzzer write failed: %v", err)
		}
	}
}

// restTick forces the actuators to their rest positions. Steering mode
// and PID accumulators are deliberately left alone so the loop resumes
// where it stopped when power returns.
func (v *Vehicle) restTick() {
	v.motor.SetDesired(0)
	if err := v.out.Motor.WriteDuty(0); err != nil {
		log.Printf("control: motor write failed: %v", err)
	}
	angle := v.steer.ForceCenter()
	if err := v.out.Servo.WriteAngle(angle); err != nil {
		log.Printf("control: servo write failed: %v", err)
	}
	if v.buzzerOn {
		v.buzzerOn = false
		_ = v.out.Buzzer.Set(false)
	}

	v.mu.Lock()
	v.snap.PowerOn = v.power.On()
	v.snap.DesiredRPM = 0
	v.snap.PWMDuty = 0
	v.snap.RudderAngleDeg = angle
	v.mu.Unlock()
}
