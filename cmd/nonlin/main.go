// nonlin plots the response of a trained two filter network over the plane spanned by its filters.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jnb666/nonlin/nnet"
	"github.com/jnb666/nonlin/num"
	"github.com/jnb666/nonlin/plot3d"
	"github.com/jnb666/nonlin/surface"
	"github.com/jnb666/nonlin/web"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gonum.org/v1/gonum/mat"
)

var (
	debug   bool
	outFile string
	csvFile string
	start   bool
	opts    overrides
)

var rootCmd = &cobra.Command{
	Use:   "nonlin",
	Short: "Plot the nonlinearity surface of a two filter network",
	Long: `nonlin projects the first layer filters of a trained network onto an orthonormal
basis, samples the network output over a square grid in that plane and renders the
result as a 3-D surface. Models are loaded from <model>.net under the data directory,
or built from <model>.conf with random weights if no saved network exists. Settings
are read from <model>.yaml if present.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(debug)
	},
}

var plotCmd = &cobra.Command{
	Use:   "plot <model>",
	Short: "Compute the surface and save it to a file or view it in the browser",
	Long: `Compute the surface and save it to a file or view it in the browser.

Example usage:
  nonlin plot simple_2f                     # serve the plot at http://localhost:8080
  nonlin plot simple_2f --out surface.svg   # save to file, format from the extension
  nonlin plot simple_2f --rot 45 --lim 1    # rotate and clip the first axis to [0, 1]`,
	Args: cobra.ExactArgs(1),
	RunE: runPlot,
}

var serveCmd = &cobra.Command{
	Use:   "serve <model>",
	Short: "Run the web interface, surfaces are computed on request",
	Args:  cobra.ExactArgs(1),
	RunE:  runServe,
}

var basisCmd = &cobra.Command{
	Use:   "basis [<model>]",
	Short: "Write the raw filters to the dump file and print the orthonormal basis",
	Long: `Write the raw filters to the dump file and print the orthonormal basis.

Example usage:
  nonlin basis simple_2f                        # filters from the model
  nonlin basis --csv Matlab_Models/simple_2f.csv  # filters from a previous dump`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBasis,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&nnet.DataDir, "data", nnet.DataDir, "data directory for models and config")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	opts.sampleFlags(plotCmd.Flags())
	opts.renderFlags(plotCmd.Flags())
	plotCmd.Flags().StringVarP(&outFile, "out", "o", "", "save plot to file instead of serving it")
	plotCmd.Flags().StringVar(&opts.addr, "addr", web.DefaultAddr, "web server listen address")

	opts.sampleFlags(serveCmd.Flags())
	opts.renderFlags(serveCmd.Flags())
	serveCmd.Flags().StringVar(&opts.addr, "addr", web.DefaultAddr, "web server listen address")
	serveCmd.Flags().BoolVar(&start, "start", false, "compute the surface on startup")

	basisCmd.Flags().BoolVar(&opts.sample.ES, "es", false, "take filters from the second layer")
	basisCmd.Flags().StringVar(&opts.sample.DumpPath, "dump", surface.DefaultDumpPath, "CSV file for the raw filters")
	basisCmd.Flags().StringVar(&csvFile, "csv", "", "read the filters from a CSV file instead of a model")

	rootCmd.AddCommand(plotCmd, serveCmd, basisCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("nonlin")
		os.Exit(1)
	}
}

func setupLogging(debug bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// command line settings which override those from the config file
type overrides struct {
	sample surface.Options
	render plot3d.Options
	addr   string
}

func (o *overrides) sampleFlags(fs *pflag.FlagSet) {
	def := surface.DefaultOptions()
	fs.Float64Var(&o.sample.Bound, "bound", def.Bound, "grid covers [-bound, bound) along each axis")
	fs.Float64Var(&o.sample.Step, "step", def.Step, "grid spacing")
	fs.BoolVar(&o.sample.ES, "es", false, "take filters from the second layer")
	fs.StringVar(&o.sample.DumpPath, "dump", def.DumpPath, "CSV file for the raw filters, empty to disable")
	fs.IntVarP(&o.sample.Workers, "workers", "j", def.Workers, "number of grid rows computed in parallel")
	fs.BoolVar(&o.sample.Batch, "batch", false, "evaluate each grid row in a single batch")
}

func (o *overrides) renderFlags(fs *pflag.FlagSet) {
	def := plot3d.DefaultOptions()
	fs.Float64Var(&o.render.Rot, "rot", def.Rot, "azimuth rotation in degrees")
	fs.Float64Var(&o.render.Lim, "lim", 0, "if > 0 limit the first axis to [0, lim]")
	fs.StringVar(&o.render.Cmap, "cmap", def.Cmap, fmt.Sprintf("colormap %v", plot3d.Colormaps()))
	fs.StringVar(&o.render.Label, "label", "", "legend label")
	fs.StringVar(&o.render.Title, "title", "", "plot title")
	fs.Float64Var(&o.render.Width, "width", def.Width, "image width in inches")
	fs.Float64Var(&o.render.Height, "height", def.Height, "image height in inches")
	fs.IntVar(&o.render.Count, "count", def.Count, "max number of surface patches along each side")
}

// apply the flags which were set on the command line
func (o *overrides) apply(fs *pflag.FlagSet, conf *web.Config) {
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "bound":
			conf.Sample.Bound = o.sample.Bound
		case "step":
			conf.Sample.Step = o.sample.Step
		case "es":
			conf.Sample.ES = o.sample.ES
		case "dump":
			conf.Sample.DumpPath = o.sample.DumpPath
		case "workers":
			conf.Sample.Workers = o.sample.Workers
		case "batch":
			conf.Sample.Batch = o.sample.Batch
		case "rot":
			conf.Render.Rot = o.render.Rot
		case "lim":
			conf.Render.Lim = o.render.Lim
		case "cmap":
			conf.Render.Cmap = o.render.Cmap
		case "label":
			conf.Render.Label = o.render.Label
		case "title":
			conf.Render.Title = o.render.Title
		case "width":
			conf.Render.Width = o.render.Width
		case "height":
			conf.Render.Height = o.render.Height
		case "count":
			conf.Render.Count = o.render.Count
		case "addr":
			conf.Addr = o.addr
		}
	})
}

// load the network and config with any command line overrides
func load(cmd *cobra.Command, model string) (*nnet.Network, *web.Config, error) {
	net, err := nnet.LoadModel(model)
	if err != nil {
		return nil, nil, err
	}
	if net.DebugLevel >= 1 {
		fmt.Println(net)
	}
	conf, err := web.NewConfig(model)
	if err != nil {
		return nil, nil, err
	}
	opts.apply(cmd.Flags(), conf)
	return net, conf, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runPlot(cmd *cobra.Command, args []string) error {
	net, conf, err := load(cmd, args[0])
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	grid, err := surface.Generate(ctx, net, conf.Sample, surface.NewLogProgress(os.Stderr))
	if err != nil {
		return err
	}
	if outFile != "" {
		fig, err := plot3d.New(grid.X, grid.Y, grid.Z, conf.Render)
		if err != nil {
			return err
		}
		return fig.Save(outFile)
	}
	sess := web.NewSession(net, conf)
	sess.SetGrid(grid)
	return web.Serve(ctx, sess)
}

func runServe(cmd *cobra.Command, args []string) error {
	net, conf, err := load(cmd, args[0])
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	sess := web.NewSession(net, conf)
	if start {
		if err := sess.Start(ctx); err != nil {
			return err
		}
	}
	return web.Serve(ctx, sess)
}

func runBasis(cmd *cobra.Command, args []string) error {
	filters, basis, err := basisFor(args, csvFile, opts.sample)
	if err != nil {
		return err
	}
	fmt.Printf("filters:\n%s", num.Format(filters))
	fmt.Printf("basis:\n%s", num.Format(basis))
	return nil
}

// filters from the CSV file if given else from the named model
func basisFor(args []string, csvFile string, opts surface.Options) (filters, basis *mat.Dense, err error) {
	if csvFile != "" {
		if filters, err = surface.LoadCSV(csvFile); err != nil {
			return nil, nil, err
		}
		basis, err = surface.Basis(filters)
		return filters, basis, err
	}
	if len(args) != 1 {
		return nil, nil, fmt.Errorf("basis: need a model name or --csv file")
	}
	net, err := nnet.LoadModel(args[0])
	if err != nil {
		return nil, nil, err
	}
	if filters, err = surface.Filters(net.Weights(), opts.ES); err != nil {
		return nil, nil, err
	}
	basis, err = surface.Extract(net, opts.ES, opts.DumpPath)
	return filters, basis, err
}
