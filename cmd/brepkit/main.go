// Command brepkit runs a brepkit script, or one of the built-in demos, and
// exports the resulting meshes and intersection curves.
//
//	brepkit -demo overlap -stl out.stl -dxf out.dxf -svg face.svg
//	brepkit -script part.brepkit -rel 0.005 -v
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/chazu/brepkit/pkg/kernel"
)

type options struct {
	script, demo  string
	abs, rel      float64
	norm, dist    float64
	out           Outputs
	json, verbose bool
	timeout       time.Duration
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("brepkit", flag.ContinueOnError)
	fs.StringVar(&o.script, "script", "", "script file to run")
	fs.StringVar(&o.demo, "demo", "", "built-in demo to run: "+strings.Join(Demos(), ", "))
	fs.Float64Var(&o.abs, "abs", 0, "absolute chord tolerance")
	fs.Float64Var(&o.rel, "rel", 0, "chord tolerance relative to the part size")
	fs.Float64Var(&o.norm, "norm", 0, "normal tolerance in degrees")
	fs.Float64Var(&o.dist, "dist", 0, "distance below which points coincide")
	fs.StringVar(&o.out.STL, "stl", "", "write meshes to this STL file")
	fs.StringVar(&o.out.DXF, "dxf", "", "write intersection curves to this DXF file")
	fs.StringVar(&o.out.SVG, "svg", "", "write the most cut face domain to this SVG file")
	fs.BoolVar(&o.json, "json", false, "print the result as JSON")
	fs.BoolVar(&o.verbose, "v", false, "log progress to stderr")
	fs.DurationVar(&o.timeout, "timeout", 0, "evaluation time limit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if (o.script == "") == (o.demo == "") {
		return o, fmt.Errorf("give exactly one of -script or -demo")
	}
	return o, nil
}

// source returns the script to run, with a tolerance form in front when
// any tolerance flag is set. The form takes the normal tolerance in
// radians.
func (o options) source() (string, error) {
	var src string
	if o.demo != "" {
		s, err := Demo(o.demo)
		if err != nil {
			return "", err
		}
		src = s
	} else {
		b, err := os.ReadFile(o.script)
		if err != nil {
			return "", err
		}
		src = string(b)
	}
	var tol []string
	for _, f := range []struct {
		key string
		v   float64
	}{{"abs", o.abs}, {"rel", o.rel}, {"norm", o.norm * math.Pi / 180}, {"dist", o.dist}} {
		if f.v > 0 {
			tol = append(tol, fmt.Sprintf(":%s %g", f.key, f.v))
		}
	}
	if len(tol) > 0 {
		src = "(tolerance " + strings.Join(tol, " ") + ")\n" + src
	}
	return src, nil
}

func run(args []string) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}
	if o.verbose {
		kernel.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	src, err := o.source()
	if err != nil {
		return err
	}

	app := NewApp()
	app.engine.Timeout = o.timeout
	r := app.Evaluate(src)
	if len(r.Errors) > 0 {
		for _, e := range r.Errors {
			if e.Line > 0 {
				fmt.Fprintf(os.Stderr, "line %d: %s\n", e.Line, e.Message)
			} else {
				fmt.Fprintln(os.Stderr, e.Message)
			}
		}
		return fmt.Errorf("script failed")
	}

	if o.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return err
		}
	} else {
		for _, m := range r.Meshes {
			fmt.Printf("%s: %s, %d triangles, watertight=%t\n", m.PartName, m.Status, len(m.Indices)/3, m.Watertight)
		}
		for i, c := range r.Curves {
			fmt.Printf("curve %d: %d points, closed=%t\n", i, len(c.Points), c.Closed)
		}
		for _, w := range r.Warnings {
			fmt.Printf("warning: %s\n", w.Message)
		}
	}
	return app.Export(r, o.out)
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "brepkit:", err)
		os.Exit(1)
	}
}
