package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/head_tracker/internal/config"
	"github.com/relabs-tech/head_tracker/internal/imu"
)

// DisplayData holds the latest rotation for the display.
type DisplayData struct {
	mu       sync.RWMutex
	rotation imu.Rotation
	have     bool
	received time.Time
}

// RunDisplay shows the tracker's yaw, pitch and roll on an SSD1306 OLED.
func RunDisplay() error {
	cfg := config.Get()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Println("display: initialized")

	if err := dev.Draw(dev.Bounds(), splashImage(), image.Point{}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	data := &DisplayData{}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	token := client.Subscribe(cfg.TopicRotation, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var r imu.Rotation
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			log.Printf("display: rotation unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.rotation = r
		data.have = true
		data.received = time.Now()
		data.mu.Unlock()
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: subscribed to %s", cfg.TopicRotation)

	interval := time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	for now := range ticker.C {
		data.mu.RLock()
		r, have := data.rotation, data.have
		// Data older than ten update intervals is flagged.
		stale := have && now.Sub(data.received) > 10*interval
		data.mu.RUnlock()

		if err := dev.Draw(dev.Bounds(), rotationImage(r, have, stale), image.Point{}); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}

	return nil
}

func blankImage() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

func drawLine(d *font.Drawer, x, y int, text string) {
	d.Dot = fixed.P(x, y)
	d.DrawString(text)
}

func rotationImage(r imu.Rotation, have, stale bool) *image1bit.VerticalLSB {
	img, d := blankImage()

	if !have {
		drawLine(d, 0, 26, "Head tracker")
		drawLine(d, 0, 39, "Waiting...")
		return img
	}

	drawLine(d, 0, 13, fmt.Sprintf("Y: %6.1f", r.Pose.Yaw))
	drawLine(d, 0, 26, fmt.Sprintf("P: %6.1f", r.Pose.Pitch))
	drawLine(d, 0, 39, fmt.Sprintf("R: %6.1f", r.Pose.Roll))

	status := fmt.Sprintf("k=%.2f", r.FilterCoefficient)
	switch {
	case stale:
		status += " STALE"
	case !r.Running:
		status += " STOP"
	}
	drawLine(d, 0, 56, status)
	return img
}

func splashImage() *image1bit.VerticalLSB {
	img, d := blankImage()
	drawLine(d, 10, 26, "Head tracker")
	drawLine(d, 5, 43, "Hold still to")
	drawLine(d, 25, 56, "settle")
	return img
}
