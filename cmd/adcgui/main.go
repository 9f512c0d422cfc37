package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/GSB-WEB/adcsim"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

var configPath string

func main() {
	flag.StringVar(&configPath, "config", "", "optional configuration directory, the first channel sets the initial inputs")
	flag.Parse()

	os.Exit(run())
}

// inputs is the state of the form, read by every conversion.
type inputs struct {
	r      adcsim.EngineeringRange
	signal adcsim.Signal
	adc    adcsim.AdcConfig
	value  float64
}

func initialInputs() (inputs, error) {
	in := inputs{
		r:      adcsim.DefaultRange,
		signal: adcsim.DefaultSignal,
		adc:    adcsim.AdcConfig{ResolutionBits: adcsim.DefaultResolutionBits, ReferenceVoltage: adcsim.DefaultReferenceVoltage},
	}
	in.value = in.r.Midpoint()
	if configPath == "" {
		return in, nil
	}

	config, err := adcsim.LoadConfig(configPath)
	if err != nil {
		return in, err
	}
	if len(config.Channels) == 0 {
		return in, nil
	}
	ch := config.Channels[0]
	s, err := ch.ParsedSignal()
	if err != nil {
		return in, err
	}
	in.r, in.signal, in.adc = ch.Range(), s, ch.ADC()
	in.value = in.r.Midpoint()
	if ch.Value != nil {
		in.value = *ch.Value
	}
	return in, nil
}

func run() int {
	in, err := initialInputs()
	if err != nil {
		slog.Error(err.Error())
		return 1
	}

	myApp := app.New()
	myWindow := myApp.NewWindow("ADC Simulator")

	// results
	resultLabels := map[string]*widget.Label{}
	resultOrder := []string{"Digital code", "Binary", "Hexadecimal", "Octal", "Electrical value", "Loop current", "% of variable", "% of reference", "Clamped"}
	techOrder := []string{"Combinations", "Max code", "LSB", "Quantization error"}
	newRows := func(names []string) *widget.Form {
		form := widget.NewForm()
		for _, name := range names {
			l := widget.NewLabel("-")
			l.TextStyle = fyne.TextStyle{Monospace: true}
			resultLabels[name] = l
			form.Append(name, l)
		}
		return form
	}
	resultForm := newRows(resultOrder)
	techForm := newRows(techOrder)
	status := widget.NewLabel("")

	setResult := func(name, text string) {
		resultLabels[name].SetText(text)
	}

	convert := func() {
		res, err := adcsim.Convert(in.value, in.r, in.signal, in.adc)
		if err != nil {
			status.SetText(err.Error())
			return
		}
		status.SetText(fmt.Sprintf("%g %s → %s", in.value, in.r.Unit, in.signal))
		setResult("Digital code", fmt.Sprintf("%d / %d", res.DigitalCode, res.MaxDigitalCode))
		setResult("Binary", res.BinaryString)
		setResult("Hexadecimal", res.Hex())
		setResult("Octal", res.Octal())
		setResult("Electrical value", fmt.Sprintf("%.4f V", res.ElectricalValue))
		if in.signal.Domain() == adcsim.Current {
			setResult("Loop current", fmt.Sprintf("%.3f mA", res.LoopCurrent))
		} else {
			setResult("Loop current", "-")
		}
		setResult("% of variable", fmt.Sprintf("%.2f %%", res.PercentOfVariable))
		setResult("% of reference", fmt.Sprintf("%.2f %%", res.PercentOfReference))
		setResult("Clamped", strconv.FormatBool(res.Clamped))

		setResult("Combinations", strconv.FormatUint(in.adc.Combinations(), 10))
		setResult("Max code", strconv.FormatUint(in.adc.MaxCode(), 10))
		setResult("LSB", fmt.Sprintf("%.6f mV", in.adc.ResolutionVolts()*1000))
		setResult("Quantization error", fmt.Sprintf("±%.6f mV", in.adc.QuantizationError()*1000))
	}
	convertButton := widget.NewButton("Convert", convert)
	convertButton.Importance = widget.HighImportance

	// value
	valueLabel := widget.NewLabel("")
	valueSlider := widget.NewSlider(in.r.Min, in.r.Max)
	updateValueLabel := func() {
		valueLabel.SetText(fmt.Sprintf("Current value: %.2f %s", in.value, in.r.Unit))
	}
	valueSlider.OnChanged = func(v float64) {
		in.value = v
		updateValueLabel()
	}

	// range, validated before conversion is enabled
	minEntry := widget.NewEntry()
	maxEntry := widget.NewEntry()
	unitEntry := widget.NewEntry()
	minEntry.SetText(strconv.FormatFloat(in.r.Min, 'g', -1, 64))
	maxEntry.SetText(strconv.FormatFloat(in.r.Max, 'g', -1, 64))
	unitEntry.SetText(in.r.Unit)
	boundValidator := func(s string) error {
		_, err := parseBound(s)
		return err
	}
	minEntry.Validator = boundValidator
	maxEntry.Validator = boundValidator

	applyRange := func() {
		lo, errLo := parseBound(minEntry.Text)
		hi, errHi := parseBound(maxEntry.Text)
		r := adcsim.EngineeringRange{Min: lo, Max: hi, Unit: in.r.Unit}
		if err := r.Validate(); errLo != nil || errHi != nil || err != nil {
			convertButton.Disable()
			if err != nil {
				status.SetText(err.Error())
			}
			return
		}
		convertButton.Enable()
		status.SetText("")
		in.r = r
		in.value = min(max(in.value, r.Min), r.Max)
		valueSlider.Min, valueSlider.Max = r.Min, r.Max
		valueSlider.Step = (r.Max - r.Min) / 1000
		valueSlider.SetValue(in.value)
		updateValueLabel()
	}
	minEntry.OnChanged = func(string) { applyRange() }
	maxEntry.OnChanged = func(string) { applyRange() }
	unitEntry.OnChanged = func(s string) {
		in.r.Unit = strings.TrimSpace(s)
		updateValueLabel()
	}

	var presetNames []string
	for _, p := range adcsim.UnitPresets() {
		presetNames = append(presetNames, p.Name)
	}
	presetSelect := widget.NewSelect(presetNames, func(name string) {
		unitEntry.SetText(adcsim.PresetUnit(name))
	})
	presetSelect.PlaceHolder = "Unit preset"

	// signal and converter
	var signalNames []string
	for _, s := range adcsim.Signals() {
		signalNames = append(signalNames, s.String())
	}
	signalSelect := widget.NewSelect(signalNames, func(name string) {
		s, err := adcsim.ParseSignal(name)
		if err != nil {
			status.SetText(err.Error())
			return
		}
		in.signal = s
	})
	signalSelect.SetSelected(in.signal.String())

	var bitNames []string
	for _, b := range adcsim.Resolutions {
		bitNames = append(bitNames, strconv.Itoa(b))
	}
	bitsSelect := widget.NewSelect(bitNames, func(s string) {
		b, err := strconv.Atoi(s)
		if err != nil {
			return
		}
		in.adc.ResolutionBits = b
	})
	bitsSelect.SetSelected(strconv.Itoa(in.adc.ResolutionBits))

	vrefLabel := widget.NewLabel("")
	vrefSlider := widget.NewSlider(adcsim.MinReferenceVolts, adcsim.MaxReferenceVolts)
	vrefSlider.Step = 0.1
	vrefSlider.OnChanged = func(v float64) {
		in.adc.ReferenceVoltage = v
		vrefLabel.SetText(fmt.Sprintf("Reference voltage: %.1f V", v))
	}
	vrefSlider.SetValue(in.adc.ReferenceVoltage)

	applyRange()

	inputsForm := widget.NewForm(
		widget.NewFormItem("Minimum", minEntry),
		widget.NewFormItem("Maximum", maxEntry),
		widget.NewFormItem("Preset", presetSelect),
		widget.NewFormItem("Unit", unitEntry),
		widget.NewFormItem("Signal", signalSelect),
		widget.NewFormItem("Resolution (bits)", bitsSelect),
	)
	left := container.NewVBox(
		widget.NewCard("Sensor & converter", "", inputsForm),
		vrefLabel, vrefSlider,
		valueLabel, valueSlider,
		convertButton,
		status,
	)
	right := container.NewVBox(
		widget.NewCard("Conversion result", "", resultForm),
		widget.NewCard("Technical information", "", techForm),
	)

	split := container.NewHSplit(container.NewVScroll(left), container.NewVScroll(right))
	split.SetOffset(0.45)

	convert()

	myWindow.Resize(fyne.NewSize(960, 640))
	myWindow.SetContent(split)
	myWindow.ShowAndRun()
	return 0
}

// parseBound reads a range bound within the accepted input interval.
func parseBound(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if f < adcsim.MinRangeBound || f > adcsim.MaxRangeBound {
		return 0, fmt.Errorf("%g outside [%g, %g]", f, float64(adcsim.MinRangeBound), float64(adcsim.MaxRangeBound))
	}
	return f, nil
}
