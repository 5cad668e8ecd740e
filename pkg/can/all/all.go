// Package all blank-imports every built-in transport so registering one by
// name (can.New("queue", ...)) works without the caller needing to know
// which package implements it — the same role the teacher's
// pkg/can/all plays for its socketcan/socketcanv2/virtual/kvaser set.
package all

import (
	_ "github.com/robopen/canexus/pkg/can/loopback"
	_ "github.com/robopen/canexus/pkg/can/queue"
	_ "github.com/robopen/canexus/pkg/can/socketcan"
	_ "github.com/robopen/canexus/pkg/can/socketcanraw"
	_ "github.com/robopen/canexus/pkg/can/spi"
)
