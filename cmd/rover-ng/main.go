package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"rover-ng/internal/actuator"
	"rover-ng/internal/camera"
	"rover-ng/internal/config"
	"rover-ng/internal/control"
	"rover-ng/internal/gps"
	"rover-ng/internal/i2c"
	"rover-ng/internal/motor"
	"rover-ng/internal/observability"
	"rover-ng/internal/ranging"
	"rover-ng/internal/sensors/ina219"
	"rover-ng/internal/sim"
	"rover-ng/internal/steering"
	"rover-ng/internal/telemetry"
	"rover-ng/internal/udp"
	"rover-ng/internal/web"
	"rover-ng/internal/wifi"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./dev.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("rover-ng starting")

	// Network first: everything downstream assumes the collector and
	// camera are reachable. Best-effort; the rover still drives offline.
	if cfg.WiFi.Enable {
		if err := wifi.Connect(cfg.WiFi.SSID, cfg.WiFi.Password); err != nil {
			log.Printf("wifi: %v", err)
		} else if st, err := wifi.GetStatus(); err == nil {
			log.Printf("wifi connected ssid=%s state=%s ip=%s", st.SSID, st.State, st.IP)
		}
	}

	obs, err := observability.NewCollector(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("metrics init failed: %v", err)
	}

	// Distance array. A scripted scenario replaces the GPIO backend for
	// desk runs; without either, the loop runs against a driver that
	// never echoes, which reads as a clear road.
	var drv ranging.EchoDriver
	if cfg.Sim.Enable {
		script, err := sim.LoadScenarioScript(cfg.Sim.Scenario)
		if err != nil {
			log.Fatalf("sim scenario load failed: %v", err)
		}
		sc, err := sim.NewScenario(script)
		if err != nil {
			log.Fatalf("sim scenario invalid: %v", err)
		}
		log.Printf("sim scenario %s duration=%s", cfg.Sim.Scenario, sc.Duration())
		drv = sim.NewDriver(sc)
	} else {
		gpio, err := ranging.OpenGPIO([3]ranging.Pins{
			{Trigger: cfg.Ranging.Front.Trigger, Echo: cfg.Ranging.Front.Echo},
			{Trigger: cfg.Ranging.Left.Trigger, Echo: cfg.Ranging.Left.Echo},
			{Trigger: cfg.Ranging.Right.Trigger, Echo: cfg.Ranging.Right.Echo},
		})
		if err != nil {
			log.Printf("ranging gpio unavailable, running without obstacle detection: %v", err)
			gpio = ranging.Silent()
		}
		drv = gpio
	}
	array, err := ranging.NewArray(ranging.Config{
		EchoTimeout: cfg.Ranging.EchoTimeout,
		SettleDelay: cfg.Ranging.SettleDelay,
	}, drv)
	if err != nil {
		log.Fatalf("ranging init failed: %v", err)
	}
	defer array.Close()

	steer := steering.New(steering.Config{
		FrontThresholdM: cfg.Steering.FrontThresholdM,
		LeftAngleDeg:    cfg.Steering.LeftAngleDeg,
		RightAngleDeg:   cfg.Steering.RightAngleDeg,
		CenterAngleDeg:  cfg.Steering.CenterAngleDeg,
		SmoothingGain:   cfg.Steering.SmoothingGain,
		ReturnDelay:     cfg.Steering.ReturnDelay,
		CenterBandDeg:   cfg.Steering.CenterBandDeg,
	}, nil)

	mot := motor.New(motor.Config{
		Kp:          cfg.Motor.Kp,
		Ki:          cfg.Motor.Ki,
		Kd:          cfg.Motor.Kd,
		OutputMax:   cfg.Motor.OutputMax,
		FeedbackLag: cfg.Motor.FeedbackLag,
	})

	out := openOutputs(cfg.Actuator)
	defer out.Close()

	vehicle := control.New(control.Config{
		SensorInterval: cfg.Control.SensorInterval,
		RudderInterval: cfg.Control.RudderInterval,
		BuzzerInterval: cfg.Control.BuzzerInterval,
		PollPeriod:     cfg.Control.PollPeriod,
		CenterAngleDeg: cfg.Steering.CenterAngleDeg,
		CruiseRPM:      cfg.Motor.CruiseRPM,
		AvoidRPM:       cfg.Motor.AvoidRPM,
	}, array, steer, mot, out, obs)

	go func() {
		if err := vehicle.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("control loop stopped: %v", err)
			cancel()
		}
	}()

	// Telemetry: HTTP push plus optional fan-out sinks.
	hub := web.NewHub()
	defer hub.Close()

	reporter := telemetry.New(telemetry.Config{
		URL:      cfg.Telemetry.URL,
		Interval: cfg.Telemetry.Interval,
	}, func() telemetry.Frame {
		s := vehicle.Snapshot()
		return telemetry.Frame{
			FrontDistance:   s.FrontDistance,
			LeftDistance:    s.LeftDistance,
			RightDistance:   s.RightDistance,
			MotorSpeed:      s.MotorRPM,
			RudderDirection: s.RudderDirection,
		}
	}, obs)
	reporter.AddSink(telemetry.SinkFunc(func(f telemetry.Frame) error {
		hub.Broadcast(f)
		return nil
	}))
	if cfg.Telemetry.UDPDest != "" {
		bcast, err := udp.NewBroadcaster(cfg.Telemetry.UDPDest)
		if err != nil {
			log.Printf("telemetry: udp mirror disabled: %v", err)
		} else {
			defer bcast.Close()
			reporter.AddSink(telemetry.SinkFunc(func(f telemetry.Frame) error {
				b, err := json.Marshal(f)
				if err != nil {
					return err
				}
				return bcast.Send(b)
			}))
		}
	}
	if cfg.Telemetry.MQTT.Enable {
		sink, err := telemetry.NewMQTTSink(telemetry.MQTTConfig{
			Broker:   cfg.Telemetry.MQTT.Broker,
			Topic:    cfg.Telemetry.MQTT.Topic,
			ClientID: cfg.Telemetry.MQTT.ClientID,
			Username: cfg.Telemetry.MQTT.Username,
			Password: cfg.Telemetry.MQTT.Password,
		})
		if err != nil {
			log.Printf("telemetry: mqtt disabled: %v", err)
		} else {
			defer sink.Close()
			reporter.AddSink(sink)
		}
	}
	go func() {
		if err := reporter.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("telemetry stopped: %v", err)
		}
	}()

	extras := map[string]func() any{}

	// Camera and detector are optional companions.
	var frames web.FrameSource
	if cfg.Camera.Enable {
		reader := camera.NewReader(camera.Config{StreamURL: cfg.Camera.StreamURL})
		frames = reader
		go func() {
			if err := reader.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("camera stopped: %v", err)
			}
		}()

		if cfg.Camera.InferenceURL != "" {
			detector := camera.NewDetector(camera.InferenceConfig{
				Endpoint: cfg.Camera.InferenceURL,
				Interval: cfg.Camera.InferenceInterval,
			}, reader)
			extras["detections"] = func() any { return detector.Latest() }
			go func() {
				if err := detector.Run(ctx); err != nil && ctx.Err() == nil {
					log.Printf("detector stopped: %v", err)
				}
			}()
		}
	}

	gpsSvc := gps.New(gps.Config{
		Enable: cfg.GPS.Enable,
		Device: cfg.GPS.Device,
		Baud:   cfg.GPS.Baud,
	})
	if err := gpsSvc.Start(ctx); err != nil {
		log.Printf("gps: %v", err)
	}
	defer gpsSvc.Close()
	if cfg.GPS.Enable {
		extras["gps"] = func() any { return gpsSvc.Snapshot() }
	}

	if cfg.Battery.Enable {
		dev, err := i2c.Open(cfg.Battery.Bus, cfg.Battery.Addr)
		if err != nil {
			log.Printf("battery: %v", err)
		} else if mon := startBattery(ctx, dev, cfg.Battery); mon != nil {
			extras["battery"] = func() any { return mon.Snapshot() }
		}
	}

	if cfg.HTTP.Enable {
		handler := web.Handler(web.Options{
			Power:   vehicle.Power(),
			Control: vehicle.Snapshot,
			Metrics: obs.Handler(),
			Hub:     hub,
			Frames:  frames,
			Extras:  extras,
		})
		srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}
		go func() {
			log.Printf("http listening on %s", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server stopped: %v", err)
				cancel()
			}
		}()
		defer func() {
			shutCtx, done := context.WithTimeout(context.Background(), 3*time.Second)
			defer done()
			_ = srv.Shutdown(shutCtx)
		}()
	}

	<-ctx.Done()
	log.Printf("rover-ng stopping")
}

// openOutputs opens the three effectors, falling back to no-op writers
// so development hosts without PWM or GPIO still run the loop.
func openOutputs(cfg config.ActuatorConfig) actuator.Outputs {
	out := actuator.Noop()
	if servo, err := actuator.OpenServo(cfg.ServoChannel); err != nil {
		log.Printf("servo unavailable: %v", err)
	} else {
		out.Servo = servo
	}
	if pwm, err := actuator.OpenMotor(cfg.MotorChannel); err != nil {
		log.Printf("motor pwm unavailable: %v", err)
	} else {
		out.Motor = pwm
	}
	if buz, err := actuator.OpenBuzzer(cfg.BuzzerPin); err != nil {
		log.Printf("buzzer unavailable: %v", err)
	} else {
		out.Buzzer = buz
	}
	return out
}

func startBattery(ctx context.Context, dev *i2c.Dev, cfg config.BatteryConfig) *ina219.Monitor {
	d, err := ina219.New(dev, ina219.Config{ShuntOhms: cfg.ShuntOhms})
	if err != nil {
		log.Printf("battery: %v", err)
		_ = dev.Close()
		return nil
	}
	mon := ina219.NewMonitor(d, 5*time.Second)
	go func() {
		_ = mon.Run(ctx)
		_ = dev.Close()
	}()
	return mon
}
