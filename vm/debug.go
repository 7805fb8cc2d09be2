package vm

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"hivm/bytecode"
)

// RunDebug runs from ip under an interactive stepping REPL, in teacher
// vm/run.go's RunProgramDebugMode style: "n"/"next" steps one instruction,
// "r"/"run" free-runs until a breakpoint or termination, "b <offset>" toggles
// a breakpoint on a code offset.
func (m *Machine) RunDebug(ip uint64) error {
	restore := disableGCForRun()
	defer restore()

	fmt.Printf("Commands:\n\tn or next: execute next instruction\n\tr or run: run program\n\tb or break <offset>: toggle breakpoint at code offset\n\n")

	m.IP = ip
	m.CallStack = append(m.CallStack, &Frame{})
	m.printState()

	reader := bufio.NewReader(os.Stdin)
	breakpoints := make(map[uint64]struct{})
	waitForInput := true
	lastBreak := ^uint64(0)

	for {
		line := ""
		if waitForInput {
			fmt.Print("\n->")
			raw, _ := reader.ReadString('\n')
			line = strings.ToLower(strings.TrimSpace(raw))
		} else if _, hit := breakpoints[m.IP]; hit && lastBreak != m.IP {
			fmt.Println("breakpoint")
			m.printState()
			waitForInput = true
			lastBreak = m.IP
			continue
		}

		switch {
		case !waitForInput, line == "n" || line == "next":
			lastBreak = ^uint64(0)
			done, err := m.step()
			if waitForInput {
				m.printState()
			}
			if err != nil {
				fmt.Println(err)
				return err
			}
			if done {
				fmt.Println("program finished")
				return nil
			}

		case line == "program":
			m.printDisassembly()

		case line == "r" || line == "run":
			waitForInput = false

		case strings.HasPrefix(line, "b"):
			arg := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(line, "break"), "b"))
			off, err := strconv.ParseUint(arg, 10, 64)
			if err != nil {
				fmt.Println("unknown offset:", err)
				continue
			}
			if _, ok := breakpoints[off]; ok {
				delete(breakpoints, off)
			} else {
				breakpoints[off] = struct{}{}
			}
		}
	}
}

func (m *Machine) printState() {
	fmt.Printf("ip=%d stack=%d call_stack=%d\n", m.IP, len(m.Stack), len(m.CallStack))
}

func (m *Machine) printDisassembly() {
	offset := 0
	for offset < len(m.Code) {
		instr, next, err := bytecode.Decode(m.Code, offset)
		if err != nil {
			fmt.Printf("%d: <decode error: %v>\n", offset, err)
			return
		}
		fmt.Printf("%d: %s\n", offset, instr.Op)
		offset = next
	}
}
