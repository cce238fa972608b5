//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"

	"cmdq/core"
	"cmdq/protocol"
	"cmdq/standalone/gcode"
)

// Main loop timing
const (
	tickMicros   = 1000 // Motion tick period
	moveTicks    = 20   // Ticks per completed move
	sampleTicks  = 100  // Ticks between position samples
	stepsPerLoop = 8    // Records interpreted per iteration
)

var (
	// Buffers for communication
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput

	queue    *core.Queue
	receiver *protocol.LineReceiver

	// Debug counters
	msgerrors                uint32
	consecutiveWriteFailures uint32
)

func main() {
	// Disable watchdog on boot to clear any previous state
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()

	queue, err = core.NewQueue(core.DefaultConfig())
	if err != nil {
		blinkForever()
	}
	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()
	receiver = protocol.NewLineReceiver(queue, outputBuffer)

	// Queue dumps go straight to the host, one line at a time
	queue.SetDebugWriter(func(line string) {
		protocol.Reply(outputBuffer, protocol.ReplyEcho+line)
		writeUSB()
	})

	machineCfg := gcode.DefaultMachineConfig()
	moves := gcode.NewMoveBuffer(machineCfg.MoveBufferSize, moveTicks)
	interp := gcode.NewInterpreter(queue, outputBuffer, moves, machineCfg)
	sampler := core.NewPositionSampler(queue.Position(), sampleTicks, sampleTicks)

	var sched core.Scheduler
	sched.Add(moves.Timer(moveTicks))
	sched.Add(&sampler.Timer)

	go usbReaderLoop()

	start := GetHardwareTime()
	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					queue.Dump()
					receiver.Abort()
					writeUSB()
				}
			}()

			if inputBuffer.Available() > 0 {
				receiver.Receive(inputBuffer)
			}
			for i := 0; i < stepsPerLoop; i++ {
				if !interp.Step() {
					break
				}
			}
			sched.Dispatch(motionTicks(start, tickMicros))
			writeUSB()
		}()

		// Yield to the USB reader
		time.Sleep(10 * time.Microsecond)
	}
}

// usbReaderLoop moves USB bytes into the input FIFO. When the FIFO is full
// the bytes stay in the USB buffer until the main loop catches up.
func usbReaderLoop() {
	for {
		for USBAvailable() > 0 && inputBuffer.Free() > 0 {
			data, err := USBRead()
			if err != nil {
				msgerrors++
				break
			}
			inputBuffer.Write([]byte{data})
		}
		// Yield to avoid a busy loop
		time.Sleep(100 * time.Microsecond)
	}
}

// writeUSB writes available data from output buffer to USB
func writeUSB() {
	result := outputBuffer.Result()
	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			// No progress, likely a disconnect
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				consecutiveWriteFailures = 0
				outputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}

// blinkForever flashes the LED rapidly to report a fatal setup error
func blinkForever() {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		led.High()
		time.Sleep(100 * time.Millisecond)
		led.Low()
		time.Sleep(100 * time.Millisecond)
	}
}
