package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/head_tracker/internal/config"
	"github.com/relabs-tech/head_tracker/internal/imu"
	"github.com/relabs-tech/head_tracker/internal/orientation"
)

// RunConsoleMQTT prints the tracker's rotation and, when TOPIC_IMU_RAW is
// set, the raw readings feeding it.
func RunConsoleMQTT() error {
	cfg := config.Get()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}

	// Subscribe to rotation
	rotToken := client.Subscribe(cfg.TopicRotation, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var r imu.Rotation
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			log.Printf("console: rotation unmarshal error: %v", err)
			return
		}
		fmt.Println(formatRotation(r))
	})
	rotToken.Wait()
	if rotToken.Error() != nil {
		return rotToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicRotation)

	if cfg.TopicIMURaw != "" {
		rawToken := client.Subscribe(cfg.TopicIMURaw, 0, func(_ mqtt.Client, msg mqtt.Message) {
			var raw imu.Raw
			if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
				log.Printf("console: imu raw unmarshal error: %v", err)
				return
			}
			fmt.Println(formatRaw(raw))
		})
		rawToken.Wait()
		if rawToken.Error() != nil {
			return rawToken.Error()
		}
		log.Printf("console: subscribed to %s", cfg.TopicIMURaw)
	}

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}

func formatRotation(r imu.Rotation) string {
	state := "RUN "
	if !r.Running {
		state = "STOP"
	}
	return fmt.Sprintf(
		"[ROT %s] ROLL=%6.2f  PITCH=%6.2f  YAW=%6.2f  k=%.2f  q=(%.3f %.3f %.3f %.3f)",
		state, r.Pose.Roll, r.Pose.Pitch, r.Pose.Yaw, r.FilterCoefficient,
		r.Quaternion.W, r.Quaternion.X, r.Quaternion.Y, r.Quaternion.Z,
	)
}

func formatRaw(raw imu.Raw) string {
	line := fmt.Sprintf("[IMU %s] t=%d  a=%s  g=%s  m=%s",
		raw.Source, raw.TimestampNanos, formatVec(raw.Accel), formatVec(raw.Gyro), formatVec(raw.Mag))
	if a := raw.Accel; a != nil {
		tilt := orientation.ComputePoseFromAccel(a[0], a[1], a[2])
		line += fmt.Sprintf("  tilt R=%6.1f P=%6.1f", tilt.Roll, tilt.Pitch)
	}
	return line
}

func formatVec(v *[3]float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("(%7.3f %7.3f %7.3f)", v[0], v[1], v[2])
}
