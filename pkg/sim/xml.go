package sim

// targetXML is served to the client through qXfer:features:read so it
// knows the register file without guessing from the architecture name.
const targetXML = `<?xml version="1.0"?>
<!DOCTYPE target SYSTEM "gdb-target.dtd">
<target version="1.0">
<architecture>riscv:rv32</architecture>
<feature name="org.gnu.gdb.riscv.cpu">
<reg name="zero" bitsize="32" regnum="0" type="int" group="general"/>
<reg name="ra" bitsize="32" regnum="1" type="code_ptr" group="general"/>
<reg name="sp" bitsize="32" regnum="2" type="data_ptr" group="general"/>
<reg name="gp" bitsize="32" regnum="3" type="data_ptr" group="general"/>
<reg name="tp" bitsize="32" regnum="4" type="data_ptr" group="general"/>
<reg name="t0" bitsize="32" regnum="5" type="int" group="general"/>
<reg name="t1" bitsize="32" regnum="6" type="int" group="general"/>
<reg name="t2" bitsize="32" regnum="7" type="int" group="general"/>
<reg name="fp" bitsize="32" regnum="8" type="data_ptr" group="general"/>
<reg name="s1" bitsize="32" regnum="9" type="int" group="general"/>
<reg name="a0" bitsize="32" regnum="10" type="int" group="general"/>
<reg name="a1" bitsize="32" regnum="11" type="int" group="general"/>
<reg name="a2" bitsize="32" regnum="12" type="int" group="general"/>
<reg name="a3" bitsize="32" regnum="13" type="int" group="general"/>
<reg name="a4" bitsize="32" regnum="14" type="int" group="general"/>
<reg name="a5" bitsize="32" regnum="15" type="int" group="general"/>
<reg name="a6" bitsize="32" regnum="16" type="int" group="general"/>
<reg name="a7" bitsize="32" regnum="17" type="int" group="general"/>
<reg name="s2" bitsize="32" regnum="18" type="int" group="general"/>
<reg name="s3" bitsize="32" regnum="19" type="int" group="general"/>
<reg name="s4" bitsize="32" regnum="20" type="int" group="general"/>
<reg name="s5" bitsize="32" regnum="21" type="int" group="general"/>
<reg name="s6" bitsize="32" regnum="22" type="int" group="general"/>
<reg name="s7" bitsize="32" regnum="23" type="int" group="general"/>
<reg name="s8" bitsize="32" regnum="24" type="int" group="general"/>
<reg name="s9" bitsize="32" regnum="25" type="int" group="general"/>
<reg name="s10" bitsize="32" regnum="26" type="int" group="general"/>
<reg name="s11" bitsize="32" regnum="27" type="int" group="general"/>
<reg name="t3" bitsize="32" regnum="28" type="int" group="general"/>
<reg name="t4" bitsize="32" regnum="29" type="int" group="general"/>
<reg name="t5" bitsize="32" regnum="30" type="int" group="general"/>
<reg name="t6" bitsize="32" regnum="31" type="int" group="general"/>
<reg name="pc" bitsize="32" regnum="32" type="code_ptr" group="general"/>
</feature>
</target>
`
