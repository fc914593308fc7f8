// ptestbench - 压力变送器测试台
// Polls a measurement port and calibrates it against a reference current source.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ptestbench/internal/calibration"
	"ptestbench/internal/config"
	"ptestbench/internal/i18n"
	"ptestbench/internal/logger"
	"ptestbench/internal/station"
	"ptestbench/internal/status"
	"ptestbench/pkg/utils"
)

var version = "1.0.0"

func main() {
	var (
		configPath = flag.String("config", "", "config file (.json, .yaml); defaults to config.json next to the binary")
		mode       = flag.String("mode", "measure", "measure | calibrate | ports")
		port1      = flag.String("port1", "", "measurement port")
		port2      = flag.String("port2", "", "reference port")
		savePorts  = flag.Bool("save-ports", false, "remember -port1/-port2 in the config file")
		lang       = flag.String("lang", "", "message language (en, ko, zh)")
		logLevel   = flag.String("log-level", "", "log level (debug, info, warn, error)")
		probe      = flag.Bool("probe", false, "ports mode: list only ports that can be opened")
	)
	flag.Parse()

	// 加载配置
	path := *configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置加载失败，使用默认配置: %v\n", err)
		cfg = config.Default()
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *lang != "" {
		cfg.Language = *lang
	}

	// 初始化日志系统
	if f := logger.Configure(logger.Options{Level: cfg.LogLevel, Dir: cfg.LogDir}); f != nil {
		defer f.Close()
	}
	i18n.Init(cfg.Language)
	logger.Info(fmt.Sprintf("ptestbench v%s (%s)", version, i18n.GetCurrentLanguage()))

	switch *mode {
	case "ports":
		os.Exit(listPorts(*probe))
	case "measure", "calibrate":
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		flag.Usage()
		os.Exit(2)
	}

	settings := config.NewFileSettings(path, cfg)
	station.ResolvePorts(cfg, settings, *port1, *port2)
	if *savePorts {
		if err := station.RememberPorts(cfg, settings); err != nil {
			logger.Warn("save ports: ", err)
		}
	}

	reporter := status.NewMulti(status.LogReporter{}, status.NewConsole(os.Stdout))
	st, err := station.New(cfg, reporter, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var code int
	if *mode == "calibrate" {
		code = runCalibration(ctx, st)
	} else {
		code = runMeasurement(ctx, st)
	}
	if err := st.Stop(); err != nil {
		logger.Warn(err)
	}
	os.Exit(code)
}

func runMeasurement(ctx context.Context, st *station.Station) int {
	if err := st.StartMeasurement(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println(i18n.T(i18n.MsgMeasureStarted))
	<-ctx.Done()
	fmt.Println(i18n.T(i18n.MsgMeasureStopped))
	return 0
}

func runCalibration(ctx context.Context, st *station.Station) int {
	_, err := st.RunCalibration(ctx, func(p calibration.Point) {
		fmt.Println(p.String())
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func listPorts(probe bool) int {
	names, err := utils.Catalog{Probe: probe}.ListAvailablePorts()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	details := map[string]utils.SerialPortInfo{}
	if infos, err := utils.GetAvailableSerialPorts(); err == nil {
		for _, info := range infos {
			details[info.Name] = info
		}
	}

	preferred := utils.PreferredPort(names)
	for _, name := range names {
		mark := " "
		if name == preferred {
			mark = "*"
		}
		line := fmt.Sprintf("%s %s", mark, name)
		if info, ok := details[name]; ok && info.IsUSB {
			line += fmt.Sprintf("  %s [%s:%s]", info.Description, info.VID, info.PID)
		}
		fmt.Println(line)
	}
	return 0
}
