package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/GSB-WEB/adcsim"
	"github.com/goburrow/modbus"
)

func main() {
	addr := flag.String("addr", "localhost:5502", "modbus tcp address")
	unit := flag.Uint("unit", 1, "unit id")
	register := flag.Uint("register", 0, "base address of the channel")
	flag.Parse()

	handler := modbus.NewTCPClientHandler(*addr)
	handler.Timeout = 1 * time.Second
	handler.SlaveId = byte(*unit)

	err := handler.Connect()
	if err != nil {
		log.Fatal(err)
	}
	defer handler.Close()

	client := modbus.NewClient(handler)
	bb, err := client.ReadInputRegisters(uint16(*register), adcsim.ChannelRegisters)
	if err != nil {
		log.Fatal(err)
	}
	if len(bb) != 2*int(adcsim.ChannelRegisters) {
		log.Fatalf("short response: % X", bb)
	}
	words := make([]uint16, adcsim.ChannelRegisters)
	for i := range words {
		words[i] = uint16(bb[2*i])<<8 | uint16(bb[2*i+1])
	}

	r := adcsim.Result{DigitalCode: uint64(adcsim.WordsToUint32(words[0], words[1]))}
	bits := int(words[4])
	binary, err := adcsim.FormatBinary(r.DigitalCode, bits)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("code:   %d\n", r.DigitalCode)
	fmt.Printf("binary: %s\n", binary)
	fmt.Printf("hex:    %s\n", r.Hex())
	fmt.Printf("octal:  %s\n", r.Octal())
	fmt.Printf("volts:  %.4f\n", adcsim.WordsToFloat32(words[2], words[3]))
	fmt.Printf("signal: %s, %d bits\n", adcsim.Signal(words[5]), bits)
}
