package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_zap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/lancao008/google-pay/flags"
	"github.com/lancao008/google-pay/iap"
	"github.com/lancao008/google-pay/iap/cache"
	"github.com/lancao008/google-pay/iap/memory"
	"github.com/lancao008/google-pay/iap/rpc"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type app struct {
	debug bool

	log *zap.Logger
	cfg *flags.Config
}

func newRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:          "iabctl",
		Short:        "In-app billing client and fake billing service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if a.debug {
				a.log, err = zap.NewDevelopment()
			} else {
				a.log, err = zap.NewProduction()
			}
			if err != nil {
				return err
			}

			a.cfg, err = flags.Load()
			return err
		},
	}
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "log billing protocol details")

	cmd.AddCommand(
		a.newServeCommand(),
		a.newInventoryCommand(),
		a.newBuyCommand(),
		a.newConsumeCommand(),
	)
	return cmd
}

func (a *app) newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve an in-memory billing service with a demo catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			pub, priv, err := memory.GenerateKeyPair()
			if err != nil {
				return errors.Wrap(err, "failed to generate developer key")
			}

			svc := memory.NewService(a.cfg.PackageName, priv)
			svc.SetPageSize(a.cfg.PageSize)
			for _, p := range demoCatalog {
				svc.AddProduct(p)
			}

			lis, err := net.Listen("tcp", a.cfg.ListenAddress)
			if err != nil {
				return errors.Wrapf(err, "failed to listen on %s", a.cfg.ListenAddress)
			}

			serv := grpc.NewServer(
				grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
					grpc_zap.UnaryServerInterceptor(a.log),
					grpc_recovery.UnaryServerInterceptor(),
				)),
			)
			rpc.NewServer(a.log, svc).Register(serv)

			go func() {
				<-ctx.Done()
				serv.GracefulStop()
			}()

			a.log.Info("Serving billing service",
				zap.String("address", lis.Addr().String()),
				zap.String("package_name", a.cfg.PackageName),
			)
			fmt.Printf("%s=%s\n", flags.EnvPublicKey, pub)

			return serv.Serve(lis)
		},
	}
}

func (a *app) newInventoryCommand() *cobra.Command {
	var details bool
	var moreItems, moreSubs []string

	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "List owned items",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := a.setup(cmd.Context(), a.binder())
			if err != nil {
				return err
			}
			defer session.Dispose()

			inv, err := session.QueryInventory(cmd.Context(), details, moreItems, moreSubs)
			if inv != nil {
				printInventory(inv, append(moreItems, moreSubs...))
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&details, "details", false, "query store listings")
	cmd.Flags().StringSliceVar(&moreItems, "item", nil, "additional in-app skus to list")
	cmd.Flags().StringSliceVar(&moreSubs, "sub", nil, "additional subscription skus to list")
	return cmd
}

func (a *app) newBuyCommand() *cobra.Command {
	var subs, decline bool
	var payload string

	cmd := &cobra.Command{
		Use:   "buy <sku>",
		Short: "Buy an item, answering the approval screen automatically",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Target == "" {
				return iap.ErrNoProvider
			}

			cc, err := grpc.NewClient(a.cfg.Target, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return errors.Wrap(err, "failed to create client")
			}
			defer cc.Close()

			session, err := a.setup(cmd.Context(), rpc.NewConnBinder(cc))
			if err != nil {
				return err
			}
			defer session.Dispose()

			itemType := iap.ItemTypeInApp
			if subs {
				itemType = iap.ItemTypeSubs
			}

			host := rpc.NewApprovalHost(a.log, cc, session, func(*iap.BuyIntent) bool {
				return !decline
			})

			done := make(chan error, 1)
			session.LaunchPurchaseFlow(cmd.Context(), host, args[0], itemType, 1, func(result iap.Result, purchase *iap.Purchase) {
				if result.IsFailure() {
					done <- errors.New(result.Message)
					return
				}
				fmt.Printf("purchased %s order=%s token=%s\n", purchase.SKU, purchase.OrderID, purchase.Token)
				done <- nil
			}, payload)

			return <-done
		},
	}
	cmd.Flags().BoolVar(&subs, "subs", false, "buy a subscription")
	cmd.Flags().BoolVar(&decline, "decline", false, "cancel on the approval screen")
	cmd.Flags().StringVar(&payload, "payload", "", "developer payload")
	return cmd
}

func (a *app) newConsumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "consume <sku>...",
		Short: "Consume owned in-app items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := a.setup(cmd.Context(), a.binder())
			if err != nil {
				return err
			}
			defer session.Dispose()

			inv, err := session.QueryInventory(cmd.Context(), false, nil, nil)
			if err != nil {
				return err
			}

			var purchases []*iap.Purchase
			for _, sku := range args {
				purchase := inv.Purchase(sku)
				if purchase == nil {
					return errors.Errorf("%s is not owned", sku)
				}
				purchases = append(purchases, purchase)
			}

			done := make(chan iap.Result, 1)
			session.ConsumeMultiAsync(cmd.Context(), purchases, func(result iap.Result, consumed []iap.Consumption) {
				for _, c := range consumed {
					fmt.Printf("%s: %s\n", c.Purchase.SKU, c.Result.Message)
				}
				done <- result
			})

			if result := <-done; result.IsFailure() {
				return errors.New(result.Message)
			}
			return nil
		},
	}
}

func (a *app) binder() iap.Binder {
	var binder iap.Binder = rpc.NewBinder(a.log, a.cfg.Target)
	if a.cfg.SkuCacheTTL > 0 {
		binder = cache.NewBinder(a.log, binder, a.cfg.SkuCacheTTL)
	}
	return binder
}

func (a *app) setup(ctx context.Context, binder iap.Binder) (*iap.Session, error) {
	session := iap.NewSession(
		a.log,
		binder,
		iap.NewKeyVerifier(a.log, a.cfg.PublicKey),
		a.cfg.PackageName,
		iap.WithAPIVersion(a.cfg.APIVersion),
	)

	done := make(chan iap.Result, 1)
	session.Setup(ctx, func(result iap.Result, _ bool) {
		done <- result
	})

	if result := <-done; result.IsFailure() {
		return nil, errors.New(result.Message)
	}
	return session, nil
}

func printInventory(inv *iap.Inventory, extra []string) {
	for _, p := range inv.AllPurchases() {
		fmt.Printf("owned %-5s %s order=%s payload=%q\n", p.ItemType, p.SKU, p.OrderID, p.DeveloperPayload)
	}
	for _, sku := range append(inv.AllOwnedSkus(), extra...) {
		if d := inv.SkuDetails(sku); d != nil {
			fmt.Printf("listing %s %q %s (%s %s)\n", d.SKU, d.Title, d.Price, d.PriceAmount(), d.PriceCurrencyCode)
		}
	}
}

var demoCatalog = []memory.Product{
	{SKU: "gas", ItemType: iap.ItemTypeInApp, Title: "Gas", Description: "A tank of gas", Price: "$0.99", PriceAmountMicros: 990_000, PriceCurrencyCode: "USD"},
	{SKU: "premium", ItemType: iap.ItemTypeInApp, Title: "Premium", Description: "Premium upgrade", Price: "$4.99", PriceAmountMicros: 4_990_000, PriceCurrencyCode: "USD"},
	{SKU: "infinite_gas", ItemType: iap.ItemTypeSubs, Title: "Infinite gas", Description: "Monthly infinite gas", Price: "$2.99", PriceAmountMicros: 2_990_000, PriceCurrencyCode: "USD"},
}
