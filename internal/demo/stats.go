package demo

type Counter struct {
	Deposits     int
	DepositUnits int64
	Payments     int
	PaidUnits    int64
}

func (c *Counter) AddDeposit(d Deposit) {
	c.Deposits++
	c.DepositUnits += d.Amount
}

func (c *Counter) AddPayment(amount int64) {
	c.Payments++
	c.PaidUnits += amount
}

func (c Counter) DepositMajor() float64 {
	return float64(c.DepositUnits) / 100
}

func (c Counter) PaidMajor() float64 {
	return float64(c.PaidUnits) / 100
}
