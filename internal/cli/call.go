package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jsonrpc-router/client"
	"jsonrpc-router/codec"
	"jsonrpc-router/config"
	"jsonrpc-router/loadbalance"
	"jsonrpc-router/registry"
)

type callOptions struct {
	addr    string
	notify  bool
	timeout time.Duration
}

// caller is the part of client.Conn and client.Balanced the call command needs.
type caller interface {
	Call(ctx context.Context, method string, params any, result any) error
	Notify(ctx context.Context, method string, params any) error
	Close() error
}

func newCallCommand(cfg *config.Config) *cobra.Command {
	opts := &callOptions{}
	cmd := &cobra.Command{
		Use:   "call METHOD [PARAMS_JSON]",
		Short: "Send one request to a router and print the result",
		Long: "Send one request to a router and print the result.\n\n" +
			"The router is dialed at --addr, or discovered through etcd by --service\n" +
			"when --etcd is set and --addr is empty.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, cfg, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "router address")
	cmd.Flags().BoolVar(&opts.notify, "notify", false, "send a notification and do not wait for a result")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "call timeout")
	cmd.Flags().StringVar(&cfg.Balancer, "balancer", cfg.Balancer, "balancer for discovered routers (round_robin, weighted_random, consistent_hash)")
	return cmd
}

func runCall(cmd *cobra.Command, cfg *config.Config, opts *callOptions, args []string) error {
	method := args[0]
	var params json.RawMessage
	if len(args) == 2 {
		if !json.Valid([]byte(args[1])) {
			return fmt.Errorf("params are not valid JSON: %s", args[1])
		}
		params = json.RawMessage(args[1])
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	c, err := dialRouter(ctx, cfg, opts, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	if opts.notify {
		return c.Notify(ctx, method, paramsOrNil(params))
	}

	var result json.RawMessage
	if err := c.Call(ctx, method, paramsOrNil(params), &result); err != nil {
		return err
	}

	var out bytes.Buffer
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	if err := json.Indent(&out, result, "", "  "); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err = cmd.OutOrStdout().Write(out.Bytes())
	return err
}

// paramsOrNil keeps absent params absent on the wire.
func paramsOrNil(params json.RawMessage) any {
	if params == nil {
		return nil
	}
	return params
}

func dialRouter(ctx context.Context, cfg *config.Config, opts *callOptions, logger *zap.Logger) (caller, error) {
	typ, err := codec.ParseType(cfg.Codec)
	if err != nil {
		return nil, err
	}
	clientOpts := []client.Option{client.WithCodec(typ), client.WithLogger(logger)}

	if opts.addr != "" {
		return client.Dial(ctx, cfg.Network, opts.addr, clientOpts...)
	}
	if len(cfg.EtcdEndpoints) == 0 {
		return nil, errors.New("either --addr or --etcd is required")
	}

	bal, err := loadbalance.ByName(cfg.Balancer)
	if err != nil {
		return nil, err
	}
	reg, err := registry.NewEtcd(cfg.EtcdEndpoints, cfg.EtcdDialTimeout, logger.Named("registry"))
	if err != nil {
		return nil, err
	}
	return &discovered{Balanced: client.NewBalanced(reg, bal, cfg.Service, clientOpts...), reg: reg}, nil
}

// discovered closes the registry together with the balanced client.
type discovered struct {
	*client.Balanced
	reg *registry.Etcd
}

func (d *discovered) Close() error {
	d.Balanced.Close()
	return d.reg.Close()
}
