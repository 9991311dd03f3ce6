package protocol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jangala-dev/daqd/internal/capability"
)

func TestSubstituteBasicAndFormatted(t *testing.T) {
	out, err := Substitute("${address}ma${position_pulses:08X}", map[string]interface{}{
		"address":          "2",
		"position_pulses": 500,
	})
	require.NoError(t, err)
	assert.Equal(t, "2ma000001F4", out)
}

func TestSubstituteUndefinedVariableFails(t *testing.T) {
	_, err := Substitute("${missing}", map[string]interface{}{})
	assert.Error(t, err)
}

// TestResponseParseScenario3Pattern grounds spec.md §8 scenario 3's exact
// pattern and input bytes, verifying the named-capture-plus-dtype-coercion
// mechanics rather than the scenario's illustrative (and arithmetically
// inconsistent) numeric example.
func TestResponseParseScenario3Pattern(t *testing.T) {
	resp := ResponseConfig{
		Pattern: `^(?P<addr>[0-9A-Fa-f])PO(?P<pulses>[0-9A-Fa-f]{8})$`,
		Fields: map[string]FieldConfig{
			"addr":   {DType: FieldString},
			"pulses": {DType: FieldHexI32},
		},
	}
	c, err := Compile("position", resp)
	require.NoError(t, err)

	fields, err := c.Parse([]byte("0PO0001F400"))
	require.NoError(t, err)
	assert.Equal(t, "0", fields["addr"])
	assert.Equal(t, float64(0x0001F400), fields["pulses"])
}

func TestResponseParseNoMatchIsCommunicationError(t *testing.T) {
	resp := ResponseConfig{Pattern: `^OK$`, Fields: map[string]FieldConfig{}}
	c, err := Compile("ack", resp)
	require.NoError(t, err)
	_, err = c.Parse([]byte("NOPE"))
	assert.Error(t, err)
}

func TestConversionPulsesToDegreesFactor(t *testing.T) {
	ex, err := ParseExpr("pulses / factor")
	require.NoError(t, err)
	v, err := ex.Eval(map[string]float64{"pulses": 8000, "factor": 398.2222})
	require.NoError(t, err)
	assert.InDelta(t, 20.089, v, 0.001)
}

func TestExprFunctionsAndPrecedence(t *testing.T) {
	ex, err := ParseExpr("round(abs(-3.6) + 2 * 2)")
	require.NoError(t, err)
	v, err := ex.Eval(nil)
	require.NoError(t, err)
	assert.Equal(t, 8.0, v)
}

func TestExprComparison(t *testing.T) {
	ex, err := ParseExpr("x >= 10")
	require.NoError(t, err)
	v, err := ex.Eval(map[string]float64{"x": 12})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestExprDivisionByZero(t *testing.T) {
	ex, err := ParseExpr("1 / x")
	require.NoError(t, err)
	_, err = ex.Eval(map[string]float64{"x": 0})
	assert.Error(t, err)
}

func TestExprRejectsUnknownFunction(t *testing.T) {
	_, err := ParseExpr("wat(1)")
	assert.Error(t, err)
}

func sampleConfig() *DeviceConfig {
	return &DeviceConfig{
		Device: DeviceSection{Type: "rotator", Name: "stg"},
		Connection: ConnectionSection{
			Bus:        BusConfig{Port: "/dev/ttyFAKE", Baud: 9600, Address: "2"},
			TimeoutMS:  1000,
			Terminator: "\r",
		},
		Commands: map[string]CommandConfig{
			"move_abs": {Template: "${address}ma${pulses:08X}", ExpectResponse: false},
			"position": {Template: "${address}gp", ExpectResponse: true, Response: "position"},
		},
		Responses: map[string]ResponseConfig{
			"position": {
				Pattern: `^(?P<addr>[0-9A-Fa-f])PO(?P<pulses>[0-9A-Fa-f]{8})$`,
				Fields: map[string]FieldConfig{
					"addr":   {DType: FieldString},
					"pulses": {DType: FieldHexI32},
				},
			},
		},
		Conversions: map[string]ConversionConfig{
			"degrees_to_pulses": {Formula: "value * 398.2222"},
			"pulses_to_degrees": {Formula: "pulses / 398.2222"},
		},
		TraitMapping: map[string]map[string]TraitMethodConfig{
			"movable": {
				"move_abs": {Command: "move_abs", ArgName: "pulses", InConversion: "degrees_to_pulses"},
				"position": {Command: "position", OutConversion: "pulses_to_degrees"},
			},
		},
	}
}

func TestValidateAcceptsSampleConfig(t *testing.T) {
	assert.NoError(t, Validate(sampleConfig()))
}

func TestValidateRejectsBadBaud(t *testing.T) {
	cfg := sampleConfig()
	cfg.Connection.Bus.Baud = 0
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsUnresolvedCommandReference(t *testing.T) {
	cfg := sampleConfig()
	cfg.Commands["position"] = CommandConfig{Template: "${address}gp", ExpectResponse: true, Response: "nonexistent"}
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsBadFormula(t *testing.T) {
	cfg := sampleConfig()
	cfg.Conversions["bad"] = ConversionConfig{Formula: "1 +"}
	assert.Error(t, Validate(cfg))
}

// fakeExchanger is a bus double recording the wire command and returning a
// canned response.
type fakeExchanger struct {
	lastWire []byte
	response []byte
}

func (f *fakeExchanger) Exchange(ctx context.Context, command []byte, terminator byte, expectResponse bool) ([]byte, error) {
	f.lastWire = append([]byte(nil), command...)
	if !expectResponse {
		return nil, nil
	}
	return f.response, nil
}

func TestGenericDriverMoveAbsAppliesInConversion(t *testing.T) {
	fe := &fakeExchanger{}
	eng, err := NewEngine(sampleConfig(), fe)
	require.NoError(t, err)
	drv := NewGenericDriver(eng)

	require.NoError(t, drv.MoveAbs(context.Background(), 10))
	// 10 degrees * 398.2222 = 3982.222 pulses, rounds via %08X truncation to int.
	assert.Contains(t, string(fe.lastWire), "2ma")
}

func TestGenericDriverPositionAppliesOutConversion(t *testing.T) {
	fe := &fakeExchanger{response: []byte("0PO0001F400\r")}
	eng, err := NewEngine(sampleConfig(), fe)
	require.NoError(t, err)
	drv := NewGenericDriver(eng)

	pos, err := drv.Position(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, float64(0x0001F400)/398.2222, pos, 0.001)
}

func TestGenericDriverCapabilitiesReflectTraitMapping(t *testing.T) {
	eng, err := NewEngine(sampleConfig(), &fakeExchanger{})
	require.NoError(t, err)
	drv := NewGenericDriver(eng)
	assert.True(t, drv.Capabilities().Has(capability.Movable))
	assert.False(t, drv.Capabilities().Has(capability.Readable))
}
