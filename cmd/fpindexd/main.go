package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulldump/box"
	"github.com/fulldump/goconfig"

	"github.com/fulldump/fpindex/configuration"
	"github.com/fulldump/fpindex/internal/fpindex"
	"github.com/fulldump/fpindex/internal/httpapi"
)

var VERSION = "dev"

var banner = `
   __       _           _
  / _|_ __ (_)_ __   __| | _____  __
 | |_| '_ \| | '_ \ / _` + "`" + ` |/ _ \ \/ /
 |  _| |_) | | | | | (_| |  __/>  <
 |_| | .__/|_|_| |_|\__,_|\___/_/\_\
     |_|                 version ` + VERSION + `
`

func main() {

	c := configuration.Default()
	goconfig.Read(&c)

	if c.Version {
		fmt.Println("Version:", VERSION)
		return
	}

	if c.ShowBanner {
		fmt.Println(banner)
	}

	if c.ShowConfig {
		e := json.NewEncoder(os.Stdout)
		e.SetIndent("", "    ")
		e.Encode(c)
	}

	idx, err := fpindex.Open(fpindex.Config{
		Dir:    c.Dir,
		Create: true,

		MinSegmentSize:   c.MinSegmentSize,
		MaxSegmentSize:   c.MaxSegmentSize,
		SegmentsPerLevel: c.SegmentsPerLevel,
		SegmentsPerMerge: c.SegmentsPerMerge,
		MaxSegments:      c.MaxSegments,

		OplogMaxFileSize: c.OplogMaxFileSize,
		BlockSize:        c.BlockSize,

		WorkerPoolSize: c.WorkerPoolSize,
	})
	if err != nil {
		log.Println("ERROR: open index:", err.Error())
		os.Exit(-1)
	}

	b := httpapi.Build(idx, VERSION)

	s := &http.Server{
		Addr:    c.HttpAddr,
		Handler: box.Box2Http(b),
	}

	ln, err := net.Listen("tcp", c.HttpAddr)
	if err != nil {
		log.Println("ERROR:", err.Error())
		os.Exit(-1)
	}
	log.Println("listening on", c.HttpAddr)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-signalChan
		fmt.Println("Signal received", sig.String())
		s.Shutdown(context.Background())
		if err := idx.Close(); err != nil {
			log.Println("ERROR: close index:", err.Error())
		}
	}()

	if err := s.Serve(ln); err != nil && err != http.ErrServerClosed {
		fmt.Println(err.Error())
	}
}
