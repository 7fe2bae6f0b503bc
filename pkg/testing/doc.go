// Package testing provides a headless harness for testing beam components.
//
// # Quick Start
//
// Create a tester, mount a component and drive frames:
//
//	func TestMenu(t *testing.T) {
//	    tester := beamtest.NewTesterWithT(t)
//	    menu, err := tester.Mount(Menu, nil)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    tester.Pump() // runs next-tick work such as the ready transition
//
//	    if !tester.Find(beamtest.ByText("Settings")).Exists() {
//	        t.Error("expected 'Settings' text")
//	    }
//	    menu.Set("open", true)
//	}
//
// # Snapshot Testing
//
// Compare the stage tree against a golden file:
//
//	tester.CaptureSnapshot().MatchesFile(t, "testdata/menu.snapshot")
//
// Update snapshots with:
//
//	BEAM_UPDATE_SNAPSHOTS=1 go test ./...
//
// # Timers
//
// Time only moves when the test says so:
//
//	tester.Clock().Advance(100 * time.Millisecond)
//	tester.Pump()
//
// # Import Alias
//
// Since this package has the same name as the standard library testing
// package, import it with an alias:
//
//	import beamtest "github.com/go-drift/beam/pkg/testing"
package testing
