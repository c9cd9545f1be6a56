package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"gnssrover/internal/antenna"
	"gnssrover/internal/config"
	"gnssrover/internal/gnss"
	"gnssrover/internal/ntrip"
	"gnssrover/internal/publish"
	"gnssrover/internal/session"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./gnssrover.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal("config load failed", "err", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var publishers []interface{ Publish(gnss.Position) }
	if mc := cfg.Publish.MQTT; mc != nil {
		m, err := publish.NewMQTT(mc.Broker, mc.ClientID, mc.Topic)
		if err != nil {
			log.Fatal("mqtt publisher init failed", "err", err)
		}
		defer m.Close()
		publishers = append(publishers, m)
	}
	if uc := cfg.Publish.UDP; uc != nil {
		u, err := publish.NewUDP(uc.Dest)
		if err != nil {
			log.Fatal("udp publisher init failed", "err", err)
		}
		defer u.Close()
		publishers = append(publishers, u)
	}

	newAntenna := func(onPosition func(gnss.Position), onStopped func(error)) session.Antenna {
		return antenna.New(antenna.Config{
			Device:         cfg.Antenna.Device,
			BaudRate:       cfg.Antenna.Baud,
			DataBits:       cfg.Antenna.DataBits,
			StopBits:       cfg.Antenna.StopBits,
			Parity:         cfg.Antenna.Parity,
			FlowControl:    cfg.Antenna.FlowControl,
			ReadBufferSize: cfg.Antenna.ReadBufferSize,
			MountOffsetCM:  cfg.Antenna.MountOffsetCM,
		}, onPosition, onStopped, nil)
	}

	var newCorrections session.CorrectionsFactory
	var keepAlive session.Config
	if nc := cfg.Ntrip; nc != nil {
		keepAlive.KeepAlivePeriod = nc.KeepAlive
		newCorrections = func(onCorrections func([]byte), onStopped func(error)) session.Corrections {
			return ntrip.New(ntrip.Config{
				Host:           nc.Host,
				Port:           nc.Port,
				Mountpoint:     nc.Mountpoint,
				Username:       nc.Username,
				Password:       nc.Password,
				ReadBufferSize: nc.ReadBufferSize,
				ReadTimeout:    nc.ReadTimeout,
			}, onCorrections, onStopped)
		}
	}

	sess := session.New(keepAlive, newAntenna, newCorrections,
		func(p gnss.Position) {
			for _, pub := range publishers {
				pub.Publish(p)
			}
		},
		func(err error) {
			// Either side of the session ending means the process is done.
			cancel()
		})

	log.Info("gnssrover starting", "device", cfg.Antenna.Device)
	if err := sess.Start(); err != nil {
		log.Fatal("session start failed", "err", err)
	}

	<-ctx.Done()
	sess.Stop()
	log.Info("gnssrover stopped")
}
