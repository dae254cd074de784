// Command golioth-basics is a minimal CLI exercising the SDK end to end:
// connect over DTLS, set a LightDB state counter every 30 seconds, and
// register an RPC method, logging connect/disconnect events as they happen.
//
// Grounded on cmd/coap/main.go's flag-parsing-then-dial shape, adapted from
// a one-shot HTTP-to-CoAP proxy request into a long-lived device session
// against this SDK's feature APIs, per original_source's
// examples/linux/golioth_basics/main.c.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/fxamacker/cbor/v2"

	coapsdk "github.com/edgefleet/coap-sdk"
	"github.com/edgefleet/coap-sdk/config"
	"github.com/edgefleet/coap-sdk/credential"
	"github.com/edgefleet/coap-sdk/lightdb"
	"github.com/edgefleet/coap-sdk/rpc"
)

func main() {
	var (
		serverAddr = flag.String("server", "coap.golioth.io:5684", "CoAP/DTLS server address")
		pskID      = flag.String("psk-id", "", "PSK identity")
		pskSecret  = flag.String("psk-secret", "", "PSK secret")
	)
	flag.Parse()

	if *pskID == "" || *pskSecret == "" {
		fmt.Fprintln(os.Stderr, "usage: golioth-basics -psk-id=<id> -psk-secret=<secret> [-server=host:port]")
		os.Exit(1)
	}

	cfg := config.Default()
	cfg.ServerAddress = *serverAddr
	cred := credential.NewPSK(*pskID, *pskSecret)

	client := coapsdk.New(cfg, cred, coapsdk.WithEventCallback(func(ev coapsdk.Event) {
		switch ev.Kind {
		case coapsdk.EventConnected:
			log.Println("connected")
		case coapsdk.EventDisconnected:
			log.Println("disconnected, reconnecting")
		}
	}))
	client.Start()
	defer client.Destroy()

	db := lightdb.New(client.Engine())
	rpcServer := rpc.New(client.Engine(), cfg.RPCMaxNumMethods)
	_ = rpcServer.Register("double", func(params rpc.Params) (interface{}, rpc.StatusCode, error) {
		var args []int
		if err := cbor.Unmarshal(params, &args); err != nil || len(args) != 1 {
			return nil, rpc.StatusUnavailable, err
		}
		return map[string]int{"value": args[0] * 2}, rpc.StatusOK, nil
	})
	if err := rpcServer.Start(); err != nil {
		log.Printf("rpc start failed: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		counter := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				counter++
				if err := db.SetInt(ctx, "counter", counter); err != nil {
					log.Printf("lightdb set failed: %s", err)
				}
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
}
