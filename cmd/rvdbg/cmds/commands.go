package cmds

import (
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"os"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/rvdbg/rvdbg/pkg/config"
	"github.com/rvdbg/rvdbg/pkg/logflags"
	"github.com/rvdbg/rvdbg/pkg/rsp"
	"github.com/rvdbg/rvdbg/pkg/server"
	"github.com/rvdbg/rvdbg/pkg/sim"
	"github.com/rvdbg/rvdbg/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should
	// produce debug output.
	logOutput string
	// listen is the server listen address.
	listen string
	// cores is the number of simulated cores.
	cores int
	// continueTimeout bounds a continue operation in seconds.
	continueTimeout float64
	// exitOnKill makes a kill packet end the server.
	exitOnKill bool
	// killCoreOnExit marks a core dead when it performs an exit syscall.
	killCoreOnExit bool
	// image is a flat binary loaded into target memory before serving.
	image string
	// imageAddr is the load address for image.
	imageAddr uint32

	conf *config.Config
)

const rvdbgLongDesc = `rvdbg serves the GDB Remote Serial Protocol for a simulated RISC-V machine.

Point a RISC-V gdb at it with:

  (gdb) target remote localhost:4242

Registers, memory, breakpoints, watchpoints and per-core execution control
work the way they do against any remote stub; system calls performed by the
simulated program are forwarded to gdb using the File-I/O extension.`

// New returns an initialized command tree.
func New() *cobra.Command {
	conf = config.LoadConfig()

	rootCommand := &cobra.Command{
		Use:   "rvdbg",
		Short: "rvdbg is a GDB remote debug server for simulated RISC-V cores.",
		Long:  rvdbgLongDesc,
		RunE:  serve,
	}
	rootCommand.Flags().StringVarP(&listen, "listen", "l", conf.Listen, "Address to listen on for client connections.")
	rootCommand.Flags().IntVarP(&cores, "cores", "c", conf.Cores, "Number of simulated cores.")
	rootCommand.Flags().Float64Var(&continueTimeout, "timeout", conf.ContinueTimeout, "Bound on a continue operation in seconds, 0 disables it.")
	rootCommand.Flags().BoolVar(&exitOnKill, "exit-on-kill", conf.ExitOnKill, "End the server on a kill packet instead of resetting the target.")
	rootCommand.Flags().BoolVar(&killCoreOnExit, "kill-core-on-exit", conf.KillCoreOnExit, "Mark a core dead once it performs an exit system call.")
	rootCommand.Flags().StringVar(&image, "image", "", "Flat binary image loaded into target memory before serving.")
	rootCommand.Flags().Uint32Var(&imageAddr, "image-addr", 0, "Load address for --image.")
	rootCommand.PersistentFlags().BoolVar(&log, "log", false, "Enable debug logging.")
	rootCommand.PersistentFlags().StringVar(&logOutput, "log-output", "", "Comma separated list of components that should produce debug output (gdbwire, server, sim).")

	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rvdbg %s\n%s\n", version.RvdbgVersion, version.BuildInfo())
		},
	}
	rootCommand.AddCommand(versionCommand)

	return rootCommand
}

func serve(cmd *cobra.Command, args []string) error {
	if err := logflags.Setup(log, logOutput, logDest()); err != nil {
		return err
	}

	tgt := sim.New(sim.Config{Cores: cores})
	if image != "" {
		data, err := ioutil.ReadFile(image)
		if err != nil {
			return fmt.Errorf("cannot read image: %v", err)
		}
		if err := tgt.LoadBytes(imageAddr, data); err != nil {
			return fmt.Errorf("cannot load image: %v", err)
		}
	}

	lis, err := net.Listen("tcp", listen)
	if err != nil {
		return err
	}
	defer lis.Close()
	fmt.Printf("rvdbg listening at: %s\n", lis.Addr())

	opts := server.Options{
		KillCoreOnExit: killCoreOnExit,
		Timeout:        time.Duration(continueTimeout * float64(time.Second)),
	}
	if exitOnKill {
		opts.KillBehaviour = server.ExitOnKill
	}

	// connections are served one at a time; two clients driving the same
	// target would trample each other
	for {
		conn, err := lis.Accept()
		if err != nil {
			return err
		}
		c := rsp.NewConn(rsp.NewTCPTransport(conn))
		err = server.New(c, tgt, opts).Run()
		c.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "session error: %v\n", err)
		}
		if exitOnKill {
			return nil
		}
	}
}

// logDest picks the log writer, coloring output when stderr is a
// terminal.
func logDest() io.Writer {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return colorable.NewColorableStderr()
	}
	return os.Stderr
}
