package nav

import (
	"fmt"
	"regexp"
	"strings"
)

// Maneuver categories
const (
	ManeuverHead               = "Head"
	ManeuverContinue           = "Continue"
	ManeuverStraight           = "Straight"
	ManeuverSlightRight        = "SlightRight"
	ManeuverRight              = "Right"
	ManeuverSharpRight         = "SharpRight"
	ManeuverSlightLeft         = "SlightLeft"
	ManeuverLeft               = "Left"
	ManeuverSharpLeft          = "SharpLeft"
	ManeuverTurnAround         = "TurnAround"
	ManeuverRoundabout         = "Roundabout"
	ManeuverFork               = "Fork"
	ManeuverMerge              = "Merge"
	ManeuverOnRamp             = "OnRamp"
	ManeuverOffRamp            = "OffRamp"
	ManeuverEndOfRoad          = "EndOfRoad"
	ManeuverWaypointReached    = "WaypointReached"
	ManeuverDestinationReached = "DestinationReached"
)

// modifierCategory maps an OSRM turn modifier to a direction category
func modifierCategory(modifier string) string {
	switch modifier {
	case "slight right":
		return ManeuverSlightRight
	case "right":
		return ManeuverRight
	case "sharp right":
		return ManeuverSharpRight
	case "slight left":
		return ManeuverSlightLeft
	case "left":
		return ManeuverLeft
	case "sharp left":
		return ManeuverSharpLeft
	case "uturn":
		return ManeuverTurnAround
	default:
		return ManeuverStraight
	}
}

// osrmCategory determines the maneuver category of an OSRM step.
// lastLeg marks the final leg so that "arrive" means the destination.
func osrmCategory(m osrmManeuver, lastLeg bool) string {
	switch m.Type {
	case "depart":
		return ManeuverHead
	case "arrive":
		if lastLeg {
			return ManeuverDestinationReached
		}
		return ManeuverWaypointReached
	case "continue", "new name":
		if m.Modifier == "" || m.Modifier == "straight" {
			return ManeuverContinue
		}
		return modifierCategory(m.Modifier)
	case "roundabout", "rotary", "roundabout turn", "exit roundabout", "exit rotary":
		return ManeuverRoundabout
	case "fork":
		return ManeuverFork
	case "merge":
		return ManeuverMerge
	case "on ramp":
		return ManeuverOnRamp
	case "off ramp":
		return ManeuverOffRamp
	case "end of road":
		return ManeuverEndOfRoad
	default:
		return modifierCategory(m.Modifier)
	}
}

// compassDirection converts a bearing in degrees to a compass word
func compassDirection(bearing int) string {
	dirs := []string{"north", "northeast", "east", "southeast", "south", "southwest", "west", "northwest"}
	idx := ((bearing%360 + 360 + 22) % 360) / 45
	return dirs[idx]
}

func ordinal(n int) string {
	switch {
	case n%100 >= 11 && n%100 <= 13:
		return fmt.Sprintf("%dth", n)
	case n%10 == 1:
		return fmt.Sprintf("%dst", n)
	case n%10 == 2:
		return fmt.Sprintf("%dnd", n)
	case n%10 == 3:
		return fmt.Sprintf("%drd", n)
	default:
		return fmt.Sprintf("%dth", n)
	}
}

func side(modifier string) string {
	if strings.Contains(modifier, "left") {
		return "left"
	}
	return "right"
}

// instructionText builds the description of a step
func instructionText(category string, m osrmManeuver, road string) string {
	onto := ""
	if road != "" {
		onto = " onto " + road
	}

	switch category {
	case ManeuverHead:
		text := "Head " + compassDirection(m.BearingAfter)
		if road != "" {
			text += " on " + road
		}
		return text
	case ManeuverContinue:
		if road != "" {
			return "Continue onto " + road
		}
		return "Continue straight"
	case ManeuverStraight:
		return "Go straight" + onto
	case ManeuverSlightRight:
		return "Slight right" + onto
	case ManeuverRight:
		return "Turn right" + onto
	case ManeuverSharpRight:
		return "Make a sharp right" + onto
	case ManeuverSlightLeft:
		return "Slight left" + onto
	case ManeuverLeft:
		return "Turn left" + onto
	case ManeuverSharpLeft:
		return "Make a sharp left" + onto
	case ManeuverTurnAround:
		return "Make a U-turn" + onto
	case ManeuverRoundabout:
		if m.Exit > 0 {
			return fmt.Sprintf("Take the %s exit in the roundabout%s", ordinal(m.Exit), onto)
		}
		return "Enter the roundabout" + onto
	case ManeuverFork:
		return "Keep " + side(m.Modifier) + " at the fork" + onto
	case ManeuverMerge:
		return "Merge " + side(m.Modifier) + onto
	case ManeuverOnRamp:
		return "Take the ramp on the " + side(m.Modifier) + onto
	case ManeuverOffRamp:
		return "Take the exit on the " + side(m.Modifier) + onto
	case ManeuverEndOfRoad:
		return "Turn " + side(m.Modifier) + " at the end of the road" + onto
	case ManeuverWaypointReached:
		return "You have reached a waypoint"
	case ManeuverDestinationReached:
		return "You have arrived at your destination"
	default:
		return "Continue" + onto
	}
}

// googleCategory maps a Google Directions maneuver to a category
func googleCategory(maneuver string, first bool) string {
	switch {
	case first && maneuver == "":
		return ManeuverHead
	case strings.HasPrefix(maneuver, "roundabout"):
		return ManeuverRoundabout
	case strings.HasPrefix(maneuver, "uturn"):
		return ManeuverTurnAround
	case strings.HasPrefix(maneuver, "fork"):
		return ManeuverFork
	case strings.HasPrefix(maneuver, "ramp"):
		return ManeuverOnRamp
	case maneuver == "merge":
		return ManeuverMerge
	case maneuver == "turn-slight-right":
		return ManeuverSlightRight
	case maneuver == "turn-right", maneuver == "keep-right":
		return ManeuverRight
	case maneuver == "turn-sharp-right":
		return ManeuverSharpRight
	case maneuver == "turn-slight-left":
		return ManeuverSlightLeft
	case maneuver == "turn-left", maneuver == "keep-left":
		return ManeuverLeft
	case maneuver == "turn-sharp-left":
		return ManeuverSharpLeft
	case maneuver == "straight":
		return ManeuverStraight
	default:
		return ManeuverContinue
	}
}

var (
	nationalHighway = regexp.MustCompile(`(?i)\bnh\s*-?\d+`)
	stateHighway    = regexp.MustCompile(`(?i)\bsh\s*-?\d+`)
	whitespace      = regexp.MustCompile(`\s+`)
)

// RoadsSummary names up to three notable roads of a route: highway numbers,
// expressways and named roads, in order of appearance.
func RoadsSummary(instructions []Instruction) string {
	var roads []string
	seen := make(map[string]bool)
	add := func(r string) {
		r = whitespace.ReplaceAllString(strings.TrimSpace(r), " ")
		if r == "" || seen[strings.ToLower(r)] {
			return
		}
		seen[strings.ToLower(r)] = true
		roads = append(roads, r)
	}

	for _, instr := range instructions {
		text := instr.Text + " " + instr.Road
		if m := nationalHighway.FindString(text); m != "" {
			add(strings.ToUpper(m))
		}
		if m := stateHighway.FindString(text); m != "" {
			add(strings.ToUpper(m))
		}
		if strings.Contains(strings.ToLower(text), "expressway") {
			add("Expressway")
		}
		if len(instr.Road) > 3 && !nationalHighway.MatchString(instr.Road) && !stateHighway.MatchString(instr.Road) {
			add(instr.Road)
		}
	}

	if len(roads) == 0 {
		return "Main Roads"
	}
	if len(roads) > 3 {
		roads = roads[:3]
	}
	return strings.Join(roads, ", ")
}

// stripHTML removes markup from Google instruction text
func stripHTML(s string) string {
	out := make([]rune, 0, len(s))
	inTag := false
	for _, r := range s {
		if r == '<' {
			inTag = true
			continue
		}
		if r == '>' {
			inTag = false
			out = append(out, ' ')
			continue
		}
		if !inTag {
			out = append(out, r)
		}
	}
	return whitespace.ReplaceAllString(strings.TrimSpace(string(out)), " ")
}
