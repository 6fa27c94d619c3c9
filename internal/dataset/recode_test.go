package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var injuries = []string{"None", "Minimal", "Minor", "Major", "Fatal", " "}

// collisionCSV renders a small KSI-shaped table with rows records.
func collisionCSV(rows int) string {
	var b strings.Builder
	b.WriteString("ACCNUM,YEAR,ROAD_CLASS,LIGHT,VEHTYPE,INVTYPE,SPEEDING,ALCOHOL,REDLIGHT,INJURY\n")
	roads := []string{"Minor Arterial", "Major Arterial", "Collector", "Local"}
	lights := []string{"Daylight", "Dark", "Dusk", " "}
	vehicles := []string{"Automobile, Station Wagon", "Taxi", "Moped", "Truck - Open", " "}
	inv := []string{"Driver", "Passenger", "Pedestrian", "Witness"}
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "%d,2019,%s,%s,%q,%s,%d,%d,%d,%s\n",
			1000+i,
			roads[i%len(roads)],
			lights[i%len(lights)],
			vehicles[i%len(vehicles)],
			inv[i%len(inv)],
			i%2, (i/2)%2, (i/3)%2,
			injuries[i%len(injuries)],
		)
	}
	return b.String()
}

func testRecodeConfig() RecodeConfig {
	return RecodeConfig{
		Label: LabelConfig{
			Column:  "INJURY",
			Classes: map[string]int{"None": 0, "Minimal": 1, "Minor": 2, "Major": 3, "Fatal": 4},
			Blank:   &BlankPolicy{Policy: BlankAssign, Class: 0},
		},
		Drop:    []string{"YEAR"},
		Numeric: []string{"SPEEDING", "ALCOHOL", "REDLIGHT"},
		Ordinal: map[string]map[string]float64{
			"ROAD_CLASS": {"Minor Arterial": 0, "Local": 0, "Major Arterial": 1, "Collector": 2},
			"LIGHT":      {"Daylight": 0, " ": 0, "Dusk": 1, "Dark": 2},
		},
		Merge: map[string]map[string]string{
			"VEHTYPE": {" ": "NA", "Taxi": "Automobile, Station Wagon", "Moped": "Motorcycle", "Truck - Open": "Heavy Commercial"},
		},
		OneHot: []string{"VEHTYPE", "INVTYPE"},
	}
}

func TestRecoder_Apply(t *testing.T) {
	frame, err := ReadCSV(strings.NewReader(collisionCSV(360)))
	require.NoError(t, err)

	r, err := NewRecoder(testRecodeConfig())
	require.NoError(t, err)

	fm, err := r.Apply(frame)
	require.NoError(t, err)

	assert.Equal(t, 360, fm.NumSamples())
	assert.Equal(t, []string{
		"ACCNUM", "ROAD_CLASS", "LIGHT",
		"VEHTYPE_Automobile, Station Wagon", "VEHTYPE_Heavy Commercial", "VEHTYPE_Motorcycle", "VEHTYPE_NA",
		"INVTYPE_Driver", "INVTYPE_Passenger", "INVTYPE_Pedestrian", "INVTYPE_Witness",
		"SPEEDING", "ALCOHOL", "REDLIGHT",
	}, fm.Names())

	// Row 1: Major Arterial, Dark, Taxi (merged), Passenger, Minimal.
	j, _ := fm.Index("ROAD_CLASS")
	assert.Equal(t, 1.0, fm.Column(j)[1])
	j, _ = fm.Index("LIGHT")
	assert.Equal(t, 2.0, fm.Column(j)[1])
	j, _ = fm.Index("VEHTYPE_Automobile, Station Wagon")
	assert.Equal(t, 1.0, fm.Column(j)[1])
	assert.Equal(t, 1, fm.Labels()[1])

	// Row 5 has a blank injury, assigned to class 0 by policy.
	assert.Equal(t, 0, fm.Labels()[5])

	// The input frame is unchanged.
	assert.True(t, frame.Has("YEAR"))
	assert.True(t, frame.Has("VEHTYPE"))
}

func TestRecoder_BlankPolicyDrop(t *testing.T) {
	frame, err := ReadCSV(strings.NewReader(collisionCSV(420)))
	require.NoError(t, err)

	rc := testRecodeConfig()
	rc.Label.Blank = &BlankPolicy{Policy: BlankDrop}
	r, err := NewRecoder(rc)
	require.NoError(t, err)

	fm, err := r.Apply(frame)
	require.NoError(t, err)
	assert.Equal(t, 350, fm.NumSamples())
}

func TestRecoder_BlankWithoutPolicy(t *testing.T) {
	frame, err := ReadCSV(strings.NewReader(collisionCSV(360)))
	require.NoError(t, err)

	rc := testRecodeConfig()
	rc.Label.Blank = nil
	r, err := NewRecoder(rc)
	require.NoError(t, err)

	_, err = r.Apply(frame)
	var ce *ConstructionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "INJURY", ce.Field)
	assert.Contains(t, ce.Reason, "blank label")
}

func TestRecoder_UnmappedOrdinal(t *testing.T) {
	frame, err := ReadCSV(strings.NewReader(collisionCSV(360)))
	require.NoError(t, err)

	rc := testRecodeConfig()
	delete(rc.Ordinal["LIGHT"], "Dusk")
	r, err := NewRecoder(rc)
	require.NoError(t, err)

	_, err = r.Apply(frame)
	var ce *ConstructionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "LIGHT", ce.Field)
}

func TestRecoder_NonNumericPassthrough(t *testing.T) {
	frame, err := ReadCSV(strings.NewReader(collisionCSV(360)))
	require.NoError(t, err)

	rc := testRecodeConfig()
	rc.OneHot = []string{"VEHTYPE"}
	r, err := NewRecoder(rc)
	require.NoError(t, err)

	_, err = r.Apply(frame)
	var ce *ConstructionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "INVTYPE", ce.Field)
}

func TestRecoder_Filter(t *testing.T) {
	frame, err := ReadCSV(strings.NewReader(collisionCSV(480)))
	require.NoError(t, err)

	rc := testRecodeConfig()
	rc.Filter = `row.INVTYPE != "Witness"`
	r, err := NewRecoder(rc)
	require.NoError(t, err)

	fm, err := r.Apply(frame)
	require.NoError(t, err)
	assert.Equal(t, 360, fm.NumSamples())
	_, ok := fm.Index("INVTYPE_Witness")
	assert.False(t, ok)
}

func TestNewRecoder_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(rc *RecodeConfig)
	}{
		{"missing label column", func(rc *RecodeConfig) { rc.Label.Column = "" }},
		{"blank class key", func(rc *RecodeConfig) { rc.Label.Classes[" "] = 0 }},
		{"unknown blank policy", func(rc *RecodeConfig) { rc.Label.Blank.Policy = "guess" }},
		{"column in two rules", func(rc *RecodeConfig) { rc.Drop = append(rc.Drop, "SPEEDING") }},
		{"merge without one_hot", func(rc *RecodeConfig) { rc.Merge["LIGHT"] = map[string]string{"Dusk": "Dark"} }},
		{"filter not bool", func(rc *RecodeConfig) { rc.Filter = `row.INVTYPE` }},
		{"filter syntax", func(rc *RecodeConfig) { rc.Filter = `row.INVTYPE ==` }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := testRecodeConfig()
			tt.mutate(&rc)
			_, err := NewRecoder(rc)
			assert.Error(t, err)
		})
	}
}

func TestLoadRecodeConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recode.yaml")
	content := `
label:
  column: INJURY
  classes: {None: 0, Minimal: 1, Minor: 2, Major: 3, Fatal: 4}
  blank: {policy: assign, class: 0}
drop: [YEAR]
ordinal:
  LIGHT: {Daylight: 0, " ": 0, Dusk: 1, Dark: 2}
one_hot: [VEHTYPE]
merge:
  VEHTYPE: {" ": NA}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	rc, err := LoadRecodeConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "INJURY", rc.Label.Column)
	assert.Equal(t, BlankAssign, rc.Label.Blank.Policy)
	assert.Equal(t, 0.0, rc.Ordinal["LIGHT"][" "])
	assert.Equal(t, "NA", rc.Merge["VEHTYPE"][" "])

	_, err = NewRecoder(rc)
	assert.NoError(t, err)
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ksi.csv")
	require.NoError(t, os.WriteFile(path, []byte("\ufeffA,B\n1, \n2,x\n"), 0o600))

	frame, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, frame.Columns())
	assert.Equal(t, 2, frame.Len())

	b, err := frame.Column("B")
	require.NoError(t, err)
	assert.Equal(t, " ", b[0])

	_, err = LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestShippedKSIRecodeConfig(t *testing.T) {
	rc, err := LoadRecodeConfig(filepath.Join("..", "..", "configs", "ksi_recode.yaml"))
	require.NoError(t, err)

	_, err = NewRecoder(rc)
	require.NoError(t, err)

	require.NotNil(t, rc.Label.Blank)
	assert.Equal(t, BlankAssign, rc.Label.Blank.Policy)
	assert.Equal(t, 0, rc.Label.Blank.Class)
	assert.Equal(t, 4, rc.Label.Classes["Fatal"])
	assert.Equal(t, 19.0, rc.Ordinal["INVAGE"]["Over 95"])
	assert.Equal(t, "Heavy Commercial", rc.Merge["VEHTYPE"]["Street Car"])
	assert.Contains(t, rc.OneHot, "CYCCOND")
}
